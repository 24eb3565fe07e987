package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// Runner executes an external command and returns its standard output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Commands are the external tools used to drive the terminal. Key and
// Type get the key name or text appended as their last argument.
type Commands struct {
	Focus      []string
	Key        []string
	Type       []string
	Clipboard  []string
	Screenshot []string
}

// DefaultCommands uses xdotool and xclip
func DefaultCommands() Commands {
	return Commands{
		Focus:     []string{"xdotool", "search", "--name", "(?i)as400", "windowactivate", "--sync"},
		Key:       []string{"xdotool", "key", "--clearmodifiers"},
		Type:      []string{"xdotool", "type", "--delay", "10", "--"},
		Clipboard: []string{"xclip", "-o", "-selection", "clipboard"},
	}
}

// ExecDriver drives the terminal through external keystroke and clipboard tools
type ExecDriver struct {
	commands    Commands
	keyDelay    time.Duration
	transcriber Transcriber
	run         Runner
}

// NewExecDriver creates a new ExecDriver. keyDelay is the pause after every
// key or text step, giving the terminal time to repaint.
func NewExecDriver(commands Commands, keyDelay time.Duration) *ExecDriver {
	return NewExecDriverWithRunner(commands, keyDelay, execRunner)
}

// NewExecDriverWithRunner creates a new ExecDriver with a custom runner for testing
func NewExecDriverWithRunner(commands Commands, keyDelay time.Duration, run Runner) *ExecDriver {
	return &ExecDriver{
		commands: commands,
		keyDelay: keyDelay,
		run:      run,
	}
}

// WithTranscriber makes CaptureScreen read the screen from a screenshot
// instead of the clipboard
func (e *ExecDriver) WithTranscriber(t Transcriber) *ExecDriver {
	e.transcriber = t
	return e
}

func (e *ExecDriver) exec(ctx context.Context, command []string, extra ...string) ([]byte, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("command not configured")
	}
	args := append(append([]string{}, command[1:]...), extra...)
	return e.run(ctx, command[0], args...)
}

func (e *ExecDriver) pause(ctx context.Context) error {
	if e.keyDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.keyDelay):
		return nil
	}
}

// Focus brings the terminal window to the foreground
func (e *ExecDriver) Focus(ctx context.Context) error {
	if _, err := e.exec(ctx, e.commands.Focus); err != nil {
		return fmt.Errorf("%w: %v", ErrWindowNotFound, err)
	}
	return e.pause(ctx)
}

// SendKeys presses keys in order
func (e *ExecDriver) SendKeys(ctx context.Context, keys ...Key) error {
	for _, key := range keys {
		if _, err := e.exec(ctx, e.commands.Key, string(key)); err != nil {
			return fmt.Errorf("sending key %s: %w", key, err)
		}
		if err := e.pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

// TypeText types literal text
func (e *ExecDriver) TypeText(ctx context.Context, text string) error {
	if _, err := e.exec(ctx, e.commands.Type, text); err != nil {
		return fmt.Errorf("typing text: %w", err)
	}
	return e.pause(ctx)
}

// CaptureScreen copies the whole screen to the clipboard and reads it back,
// or transcribes a screenshot when a transcriber is configured
func (e *ExecDriver) CaptureScreen(ctx context.Context) (string, error) {
	if e.transcriber != nil {
		return e.captureScreenshot(ctx)
	}

	if err := e.SendKeys(ctx, KeySelectAll, KeyCopy); err != nil {
		return "", fmt.Errorf("copying screen: %w", err)
	}
	out, err := e.exec(ctx, e.commands.Clipboard)
	if err != nil {
		return "", fmt.Errorf("reading clipboard: %w", err)
	}
	return string(out), nil
}

func (e *ExecDriver) captureScreenshot(ctx context.Context) (string, error) {
	image, err := e.exec(ctx, e.commands.Screenshot)
	if err != nil {
		return "", fmt.Errorf("taking screenshot: %w", err)
	}
	if len(image) == 0 {
		return "", fmt.Errorf("taking screenshot: empty image")
	}

	contentType := http.DetectContentType(image)
	slog.Debug("Transcribing screenshot", "content_type", contentType, "size", len(image))

	text, err := e.transcriber.Transcribe(ctx, image, contentType)
	if err != nil {
		return "", fmt.Errorf("transcribing screenshot: %w", err)
	}
	return text, nil
}
