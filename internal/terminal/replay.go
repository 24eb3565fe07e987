package terminal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ReplayDriver serves recorded screen captures in order and records the
// keystrokes it receives. The last capture repeats once the recording runs
// out. It is used for dry runs against saved screens.
type ReplayDriver struct {
	mu       sync.Mutex
	captures []string
	next     int
	sent     []string
}

// NewReplayDriver creates a ReplayDriver from captures
func NewReplayDriver(captures ...string) *ReplayDriver {
	return &ReplayDriver{captures: captures}
}

// LoadReplayDriver reads every .txt file in dir, in name order
func LoadReplayDriver(dir string) (*ReplayDriver, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("listing captures: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no captures found in %s", dir)
	}
	sort.Strings(paths)

	captures := make([]string, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading capture: %w", err)
		}
		captures = append(captures, string(data))
	}
	slog.Info("Loaded screen captures", "dir", dir, "count", len(captures))
	return NewReplayDriver(captures...), nil
}

// Focus always succeeds
func (r *ReplayDriver) Focus(ctx context.Context) error {
	return ctx.Err()
}

// CaptureScreen returns the next recorded capture
func (r *ReplayDriver) CaptureScreen(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.captures) == 0 {
		return "", fmt.Errorf("no captures recorded")
	}
	capture := r.captures[min(r.next, len(r.captures)-1)]
	r.next++
	return capture, nil
}

// SendKeys records the keys
func (r *ReplayDriver) SendKeys(ctx context.Context, keys ...Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		r.sent = append(r.sent, "<"+string(key)+">")
	}
	return nil
}

// TypeText records the text
func (r *ReplayDriver) TypeText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return nil
}

// Sent returns everything sent so far, keys as <Name>
func (r *ReplayDriver) Sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

// Transcript joins everything sent so far with spaces
func (r *ReplayDriver) Transcript() string {
	return strings.Join(r.Sent(), " ")
}

// Captured returns how many captures have been served
func (r *ReplayDriver) Captured() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}
