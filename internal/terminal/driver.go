package terminal

import (
	"context"
	"errors"
)

// ErrWindowNotFound is returned when the terminal window cannot be focused
var ErrWindowNotFound = errors.New("terminal window not found")

// ErrPaginationRunaway is returned when paging never reaches the last page
var ErrPaginationRunaway = errors.New("pagination did not reach the bottom marker")

// Key is a key or chord understood by the keystroke tool (xdotool names)
type Key string

const (
	KeyReturn    Key = "Return"
	KeyUp        Key = "Up"
	KeyDown      Key = "Down"
	KeyRight     Key = "Right"
	KeyEnd       Key = "End"
	KeyPageDown  Key = "Page_Down"
	KeySelectAll Key = "ctrl+a"
	KeyCopy      Key = "ctrl+c"
)

// Driver is the narrow contract the session uses to operate the terminal
type Driver interface {
	// Focus brings the terminal window to the foreground
	Focus(ctx context.Context) error

	// CaptureScreen returns the full text currently on screen
	CaptureScreen(ctx context.Context) (string, error)

	// SendKeys presses keys in order
	SendKeys(ctx context.Context, keys ...Key) error

	// TypeText types literal text
	TypeText(ctx context.Context, text string) error
}

// Transcriber turns a screenshot into screen text
type Transcriber interface {
	Transcribe(ctx context.Context, image []byte, contentType string) (string, error)
}
