package search

import (
	"context"
	"os/exec"

	"github.com/pkg/browser"
)

// BrowserOpener hands URLs to the platform's default browser.
type BrowserOpener struct {
	// Command overrides the handler, e.g. ["firefox"]. The URL is appended.
	Command []string
}

func (b BrowserOpener) Open(ctx context.Context, url string) error {
	if len(b.Command) == 0 {
		return browser.OpenURL(url)
	}

	args := append(append([]string(nil), b.Command[1:]...), url)
	cmd := exec.CommandContext(ctx, b.Command[0], args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	// Browsers often keep running; reap in the background.
	go cmd.Wait()
	return nil
}
