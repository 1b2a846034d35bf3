package protocol

// Event is one decoded message from the isolated context. The concrete types
// are Ready, LogMessage and Result; the set is closed.
type Event interface {
	event()
}

// Ready signals that the context finished bootstrapping.
type Ready struct{}

// LogMessage is a console line produced by executing code.
type LogMessage struct {
	Level Level
	Text  string
}

// Result is the terminal outcome of one execution request.
type Result struct {
	ID    string
	OK    bool
	Value string
	Error string
}

func (Ready) event()      {}
func (LogMessage) event() {}
func (Result) event()     {}

// Ok builds a successful result.
func Ok(id, value string) Result {
	return Result{ID: id, OK: true, Value: value}
}

// Err builds a failed result.
func Err(id, msg string) Result {
	return Result{ID: id, Error: msg}
}

// Level is the severity of a console line.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) wireType() Type {
	switch l {
	case LevelWarn:
		return TypeWarn
	case LevelError:
		return TypeError
	default:
		return TypeLog
	}
}

func levelOf(t Type) Level {
	switch t {
	case TypeWarn:
		return LevelWarn
	case TypeError:
		return LevelError
	default:
		return LevelInfo
	}
}
