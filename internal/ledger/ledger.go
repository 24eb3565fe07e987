package ledger

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/zombor/rma-receiver/internal/storage"
)

// Entry is one processed serial number
type Entry struct {
	RMA        string
	ReturnType string
	Serial     string
	PartNumber string
	AssignedTo string
	Receiver   string
}

// Line renders the entry in the daily log format
func (e Entry) Line() string {
	return fmt.Sprintf("RMA#: %s   Type: %s   S/N: %s\tP/N: %s\tAssigned To: %s\tReceived by: %s\n",
		e.RMA, e.ReturnType, e.Serial, e.PartNumber, e.AssignedTo, e.Receiver)
}

// Writer appends entries to per-day log files under root/YYYY/Mon/
type Writer struct {
	storage storage.Storage
	root    string
}

// NewWriter creates a new Writer rooted at root
func NewWriter(store storage.Storage, root string) *Writer {
	return &Writer{
		storage: store,
		root:    root,
	}
}

// Path returns the daily log file for a date
func (w *Writer) Path(date EntryDate) string {
	return filepath.Join(w.root, date.Year, date.Month, date.String()+".txt")
}

// Append writes one line for the entry to the daily file of date and returns
// the file path. Earlier lines are never rewritten.
func (w *Writer) Append(date EntryDate, entry Entry) (string, error) {
	if date.IsZero() {
		return "", fmt.Errorf("appending ledger entry: date is required")
	}

	path := w.Path(date)
	exists, err := w.storage.Exists(path)
	if err != nil {
		return "", fmt.Errorf("checking ledger file: %w", err)
	}
	if !exists {
		if err := w.storage.MkdirAll(filepath.Dir(path)); err != nil {
			return "", fmt.Errorf("creating ledger folders: %w", err)
		}
		slog.Info("Starting daily ledger", "path", path)
	}
	if err := w.storage.Append(path, []byte(entry.Line())); err != nil {
		return "", fmt.Errorf("appending ledger entry: %w", err)
	}
	return path, nil
}
