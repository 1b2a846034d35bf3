package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/caffeineduck/quickhub/app"
	"github.com/caffeineduck/quickhub/channel"
	"github.com/caffeineduck/quickhub/console"
	"github.com/caffeineduck/quickhub/search"
	"github.com/caffeineduck/quickhub/tabs"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

type handlers struct {
	app    *app.App
	logger *zap.Logger
}

type tabsResponse struct {
	Tabs     []tabs.Tab `json:"tabs"`
	ActiveID string     `json:"activeId"`
}

type updateTabRequest struct {
	Title *string `json:"title"`
	Query *string `json:"query"`
}

type runRequest struct {
	Code string `json:"code"`
}

type logResponse struct {
	Entries []console.Entry `json:"entries"`
}

func (h *handlers) tabsState() tabsResponse {
	store := h.app.Tabs()
	return tabsResponse{Tabs: store.List(), ActiveID: store.Active().ID}
}

// Index serves the UI. A q parameter fills the active tab, which is how the
// bookmarklet hands over a query.
func (h *handlers) Index(c *gin.Context) {
	if q := c.Query("q"); q != "" {
		h.app.Tabs().ApplyQuery(q)
	}
	page, err := webFS.ReadFile("web/index.html")
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (h *handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"sandbox": h.app.Channel().State().String(),
	})
}

func (h *handlers) ListTabs(c *gin.Context) {
	c.JSON(http.StatusOK, h.tabsState())
}

func (h *handlers) AddTab(c *gin.Context) {
	tab := h.app.Tabs().Add()
	c.JSON(http.StatusCreated, tab)
}

func (h *handlers) SelectTab(c *gin.Context) {
	if err := h.app.Tabs().Select(c.Param("id")); err != nil {
		tabError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.tabsState())
}

// UpdateTab applies a query and/or a title. The query goes first because
// it retitles the tab; an explicit title then wins.
func (h *handlers) UpdateTab(c *gin.Context) {
	var req updateTabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	tab, err := h.app.Tabs().Get(id)
	if err != nil {
		tabError(c, err)
		return
	}
	if req.Query != nil {
		if tab, err = h.app.Tabs().SetQuery(id, *req.Query); err != nil {
			tabError(c, err)
			return
		}
	}
	if req.Title != nil {
		if tab, err = h.app.Tabs().Rename(id, *req.Title); err != nil {
			tabError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, tab)
}

func (h *handlers) CloseTab(c *gin.Context) {
	if err := h.app.Tabs().Close(c.Param("id")); err != nil {
		tabError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.tabsState())
}

func tabError(c *gin.Context, err error) {
	if errors.Is(err, tabs.ErrTabNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// Search redirects to the results page, the server's way of opening a new
// browsing context.
func (h *handlers) Search(c *gin.Context) {
	q := c.Query("q")
	if strings.TrimSpace(q) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": search.ErrEmptyQuery.Error()})
		return
	}
	c.Redirect(http.StatusFound, h.app.Search().URL(q))
}

// OpenResults backs the Open Results button, which works with a blank query
// and lands on the bare search page.
func (h *handlers) OpenResults(c *gin.Context) {
	c.Redirect(http.StatusFound, h.app.Search().URL(c.Query("q")))
}

func (h *handlers) RunConsole(c *gin.Context) {
	if c.ContentType() != binding.MIMEJSON {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "content type must be " + binding.MIMEJSON})
		return
	}
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.app.RunConsole(c.Request.Context(), req.Code)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"id": id})
	case errors.Is(err, channel.ErrNotReady), errors.Is(err, channel.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Warn("run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *handlers) ConsoleLog(c *gin.Context) {
	c.JSON(http.StatusOK, logResponse{Entries: h.app.Console().Entries()})
}

func (h *handlers) ClearConsole(c *gin.Context) {
	h.app.ClearConsole()
	c.Status(http.StatusNoContent)
}
