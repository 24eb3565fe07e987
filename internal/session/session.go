package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/rma-receiver/internal/folder"
	"github.com/zombor/rma-receiver/internal/history"
	"github.com/zombor/rma-receiver/internal/ledger"
	"github.com/zombor/rma-receiver/internal/metrics"
	"github.com/zombor/rma-receiver/internal/screen"
	"github.com/zombor/rma-receiver/internal/terminal"
)

var (
	// ErrNotInExpectedScreen is returned when the terminal is not on the main menu at start
	ErrNotInExpectedScreen = errors.New("terminal is not on the Failure Analysis Menu")

	// ErrRMANotOpen is returned when the search found no serial numbers
	ErrRMANotOpen = errors.New("RMA not open or entered incorrectly")

	// ErrSessionActive is returned when a session is started while another is running
	ErrSessionActive = errors.New("a session is already active")

	// ErrNoSession is returned when there is no session to operate on
	ErrNoSession = errors.New("no session")

	// ErrSessionEnded is returned when a finished or aborted session is changed
	ErrSessionEnded = errors.New("session has ended")
)

// DefaultMaxPages bounds pagination of the search results
const DefaultMaxPages = 50

const notDamaged = "Not Damaged"

// IDGenerator generates session IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemTime struct{}

func (systemTime) Now() time.Time {
	return time.Now()
}

// FolderResolver finds or creates the image folders of an RMA
type FolderResolver interface {
	Resolve(tree folder.Tree, rma string) (string, error)
}

// LedgerWriter appends one line per processed serial to the daily ledger
type LedgerWriter interface {
	Append(date ledger.EntryDate, entry ledger.Entry) (string, error)
}

// Recorder keeps the audit history of sessions and items
type Recorder interface {
	SaveSession(session *history.Session) error
	SaveItem(item *history.Item) error
}

// Deps are the collaborators a session drives
type Deps struct {
	Driver      terminal.Driver
	Macros      terminal.Macros
	Folders     FolderResolver
	Ledger      LedgerWriter
	History     Recorder // optional
	IDGenerator IDGenerator
	TimeSource  TimeSource
	MaxPages    int
}

func (d Deps) withDefaults() Deps {
	if d.IDGenerator == nil {
		d.IDGenerator = uuidGenerator{}
	}
	if d.TimeSource == nil {
		d.TimeSource = systemTime{}
	}
	if d.MaxPages <= 0 {
		d.MaxPages = DefaultMaxPages
	}
	return d
}

// ItemRecord holds the facts captured for one serial number
type ItemRecord struct {
	Serial             string `json:"serial"`
	ReturnType         string `json:"return_type"`
	PartNumber         string `json:"part_number"`
	SLA                string `json:"sla"`
	DateAlreadyEntered bool   `json:"date_already_entered"`
}

// ItemResult is the outcome of processing one serial number
type ItemResult struct {
	ItemRecord
	Damaged     bool   `json:"damaged"`
	LedgerPath  string `json:"ledger_path"`
	FolderPath  string `json:"folder_path"`
	DamagedPath string `json:"damaged_path"`
}

// ItemFailure records a serial number whose processing stopped with an error
type ItemFailure struct {
	Serial string `json:"serial"`
	Error  string `json:"error"`
}

// Status is a snapshot of a session for display
type Status struct {
	ID         string        `json:"id"`
	RMA        string        `json:"rma"`
	Receiver   string        `json:"receiver,omitempty"`
	EntryDate  string        `json:"entry_date,omitempty"`
	AssignedTo string        `json:"assigned_to,omitempty"`
	State      State         `json:"state"`
	Damaged    bool          `json:"damaged"`
	Serials    int           `json:"serials"`
	Remaining  int           `json:"remaining"`
	Processed  int           `json:"processed"`
	Failures   []ItemFailure `json:"failures"`
	LastItem   *ItemResult   `json:"last_item,omitempty"`
	Message    string        `json:"message"`
}

// queueEntry is either a serial number or the end of the queue
type queueEntry struct {
	serial string
	done   bool
}

// Session walks the terminal through one RMA, one serial number per advance.
// A Session is not safe for concurrent use; see Controller.
type Session struct {
	deps Deps

	id         string
	rma        string
	receiver   string
	date       ledger.EntryDate
	assignedTo string
	damaged    bool
	state      State

	queue     []queueEntry
	serials   int
	processed int
	failures  []ItemFailure
	lastItem  *ItemResult
	message   string

	startedAt time.Time
	endedAt   *time.Time
}

// Start opens a session for rma: it checks the terminal is on the main menu,
// searches for the RMA, pages through the results and queues every serial
// number found. The RMA id is validated before the terminal is touched.
//
// When the failure happens after validation, the returned Session is Aborted
// and carries the reason in its status.
func Start(ctx context.Context, rma string, damaged bool, deps Deps) (*Session, error) {
	rma = strings.TrimSpace(rma)
	if err := folder.ValidateRMA(rma); err != nil {
		metrics.SessionsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	deps = deps.withDefaults()
	s := &Session{
		deps:       deps,
		id:         deps.IDGenerator.Generate(),
		rma:        rma,
		damaged:    damaged,
		state:      Idle,
		assignedTo: screen.NotAssigned,
		startedAt:  deps.TimeSource.Now(),
	}

	slog.Info("Starting RMA session", "rma", rma, "session_id", s.id, "damaged", damaged)

	if err := s.open(ctx); err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, ErrNotInExpectedScreen):
			outcome = "not_in_menu"
		case errors.Is(err, ErrRMANotOpen):
			outcome = "not_open"
		}
		metrics.SessionsTotal.WithLabelValues(outcome).Inc()

		s.queue = nil
		s.state = Aborted
		s.message = "Error: " + err.Error()
		s.end()
		slog.Error("RMA session aborted", "rma", rma, "session_id", s.id, "error", err)
		return s, err
	}

	metrics.SessionsTotal.WithLabelValues("started").Inc()
	s.message = "RMA Serial Number Saved."
	s.record()
	slog.Info("RMA session ready", "rma", rma, "session_id", s.id, "serials", s.serials, "assigned_to", s.assignedTo)
	return s, nil
}

func (s *Session) open(ctx context.Context) error {
	d := s.deps.Driver

	s.state = AwaitingMainMenu
	if err := d.Focus(ctx); err != nil {
		return fmt.Errorf("focusing terminal: %w", err)
	}
	menu, err := d.CaptureScreen(ctx)
	if err != nil {
		return fmt.Errorf("capturing main menu: %w", err)
	}
	if !screen.IsMainMenu(menu) {
		if err := terminal.Run(ctx, d, s.deps.Macros.Cancel, s.vars("")); err != nil {
			slog.Warn("Failed to cancel out of unexpected screen", "error", err)
		}
		return ErrNotInExpectedScreen
	}

	header, err := screen.ParseHeader(menu)
	if err != nil {
		return fmt.Errorf("reading main menu header: %w", err)
	}
	date, err := ledger.ParseEntryDate(header.Date)
	if err != nil {
		return fmt.Errorf("reading main menu header: %w", err)
	}
	s.receiver = header.Receiver
	s.date = date

	s.state = QueryingRMA
	if err := terminal.Run(ctx, d, s.deps.Macros.EnterSearch, s.vars("")); err != nil {
		return fmt.Errorf("entering search: %w", err)
	}
	if err := terminal.Run(ctx, d, s.deps.Macros.SearchRMA, s.vars("")); err != nil {
		return fmt.Errorf("searching RMA: %w", err)
	}

	results, err := s.capturePages(ctx)
	if err != nil {
		return err
	}

	serials := screen.Serials(results)
	if len(serials) == 0 {
		return ErrRMANotOpen
	}

	s.queue = make([]queueEntry, 0, len(serials)+1)
	for _, serial := range serials {
		s.queue = append(s.queue, queueEntry{serial: serial})
	}
	s.queue = append(s.queue, queueEntry{done: true})
	s.serials = len(serials)
	s.state = IteratingSerials
	return nil
}

// capturePages reads the search results, paging forward while more pages are
// announced, and returns every page joined in order.
func (s *Session) capturePages(ctx context.Context) (string, error) {
	d := s.deps.Driver

	page, err := d.CaptureScreen(ctx)
	if err != nil {
		return "", fmt.Errorf("capturing search results: %w", err)
	}
	metrics.PagesCaptured.Inc()

	assignee, err := screen.Tokenize(page).Assignee()
	if err != nil {
		slog.Warn("Assignee not found on search results", "rma", s.rma, "error", err)
		assignee = screen.NotAssigned
	}
	s.assignedTo = assignee

	pages := []string{page}
	if screen.HasMorePages(page) {
		for !screen.AtBottom(page) {
			if len(pages) >= s.deps.MaxPages {
				return "", fmt.Errorf("after %d pages: %w", len(pages), terminal.ErrPaginationRunaway)
			}
			if err := terminal.Run(ctx, d, s.deps.Macros.PageForward, s.vars("")); err != nil {
				return "", fmt.Errorf("paging forward: %w", err)
			}
			page, err = d.CaptureScreen(ctx)
			if err != nil {
				return "", fmt.Errorf("capturing page %d: %w", len(pages)+1, err)
			}
			metrics.PagesCaptured.Inc()
			pages = append(pages, page)
		}
	}
	slog.Debug("Captured search results", "rma", s.rma, "pages", len(pages))
	return strings.Join(pages, "\n"), nil
}

// AdvanceOne processes the next queued serial number. Once the queue is
// exhausted the terminal is returned to the main menu and the session is
// Finished; calling AdvanceOne on a Finished or Aborted session does nothing.
//
// A failing item is recorded in the status and is not retried; the session
// stays advanceable.
func (s *Session) AdvanceOne(ctx context.Context) (*ItemResult, error) {
	if s.state.Terminal() {
		return nil, nil
	}
	if s.state != IteratingSerials && s.state != AwaitingUserAdvance {
		return nil, fmt.Errorf("cannot advance session in state %s", s.state)
	}
	if len(s.queue) == 0 {
		return nil, s.finish(ctx)
	}

	next := s.queue[0]
	s.queue = s.queue[1:]
	if next.done {
		return nil, s.finish(ctx)
	}

	s.state = ProcessingSerial
	s.message = "Processing Serial: " + next.serial
	start := s.deps.TimeSource.Now()

	result, err := s.process(ctx, next.serial)
	s.processed++
	s.state = AwaitingUserAdvance
	metrics.ItemDuration.Observe(s.deps.TimeSource.Now().Sub(start).Seconds())

	item := &history.Item{
		ID:          fmt.Sprintf("%06d", s.processed),
		SessionID:   s.id,
		RMA:         s.rma,
		Serial:      next.serial,
		Damaged:     s.damaged,
		ProcessedAt: s.deps.TimeSource.Now(),
	}

	if err != nil {
		metrics.ItemsTotal.WithLabelValues("failed").Inc()
		s.failures = append(s.failures, ItemFailure{Serial: next.serial, Error: err.Error()})
		s.message = fmt.Sprintf("Error processing serial %s: %v", next.serial, err)
		item.Error = err.Error()
		s.recordItem(item)
		s.record()
		slog.Error("Failed to process serial", "rma", s.rma, "serial", next.serial, "error", err)
		return nil, fmt.Errorf("processing serial %s: %w", next.serial, err)
	}

	metrics.ItemsTotal.WithLabelValues("ok").Inc()
	s.lastItem = result
	s.message = "Processed Serial: " + next.serial
	item.ReturnType = result.ReturnType
	item.PartNumber = result.PartNumber
	item.SLA = result.SLA
	item.DateAlreadyEntered = result.DateAlreadyEntered
	item.LedgerPath = result.LedgerPath
	item.FolderPath = result.FolderPath
	if result.Damaged {
		item.DamagedPath = result.DamagedPath
	}
	s.recordItem(item)
	s.record()

	slog.Info("Processed serial",
		"rma", s.rma,
		"serial", next.serial,
		"return_type", result.ReturnType,
		"part_number", result.PartNumber,
		"sla", result.SLA,
		"damaged", result.Damaged)
	return result, nil
}

// process walks the terminal to the serial's detail screen, fills in the
// receiving date when it is blank, and files the item.
func (s *Session) process(ctx context.Context, serial string) (*ItemResult, error) {
	d := s.deps.Driver
	vars := s.vars(serial)

	if err := d.Focus(ctx); err != nil {
		return nil, fmt.Errorf("focusing terminal: %w", err)
	}
	if err := terminal.Run(ctx, d, s.deps.Macros.OpenItem, vars); err != nil {
		return nil, fmt.Errorf("opening item: %w", err)
	}
	detail, err := d.CaptureScreen(ctx)
	if err != nil {
		return nil, fmt.Errorf("capturing item: %w", err)
	}
	if screen.NeedsConfirmation(detail) {
		if err := terminal.Run(ctx, d, s.deps.Macros.Confirm, vars); err != nil {
			return nil, fmt.Errorf("confirming item: %w", err)
		}
		if detail, err = d.CaptureScreen(ctx); err != nil {
			return nil, fmt.Errorf("capturing item: %w", err)
		}
	}

	entered, err := screen.Tokenize(detail).DateEntered()
	if err != nil {
		return nil, fmt.Errorf("reading date field: %w", err)
	}
	fields, err := screen.ParseItem(detail)
	if err != nil {
		return nil, err
	}

	if !entered {
		if err := terminal.Run(ctx, d, s.deps.Macros.EnterDate, vars); err != nil {
			return nil, fmt.Errorf("entering date: %w", err)
		}
		metrics.DatesEntered.Inc()
	}

	result := &ItemResult{
		ItemRecord: ItemRecord{
			Serial:             serial,
			ReturnType:         fields.ReturnType,
			PartNumber:         fields.PartNumber,
			SLA:                fields.SLA,
			DateAlreadyEntered: entered,
		},
		Damaged:     s.damaged,
		DamagedPath: notDamaged,
	}

	result.LedgerPath, err = s.deps.Ledger.Append(s.date, ledger.Entry{
		RMA:        s.rma,
		ReturnType: fields.ReturnType,
		Serial:     serial,
		PartNumber: fields.PartNumber,
		AssignedTo: s.assignedTo,
		Receiver:   s.receiver,
	})
	if err != nil {
		return nil, err
	}

	result.FolderPath, err = s.deps.Folders.Resolve(folder.TreeReceived, s.rma)
	if err != nil {
		return nil, err
	}
	if s.damaged {
		result.DamagedPath, err = s.deps.Folders.Resolve(folder.TreeDamaged, s.rma)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Session) finish(ctx context.Context) error {
	s.queue = nil
	s.state = Finished
	s.damaged = false
	s.message = "Processing complete."
	s.end()
	slog.Info("RMA session finished", "rma", s.rma, "session_id", s.id, "processed", s.processed, "failed", len(s.failures))

	if err := s.deps.Driver.Focus(ctx); err != nil {
		return fmt.Errorf("focusing terminal: %w", err)
	}
	if err := terminal.Run(ctx, s.deps.Driver, s.deps.Macros.ReturnToMenu, s.vars("")); err != nil {
		return fmt.Errorf("returning to main menu: %w", err)
	}
	return nil
}

// SetDamaged marks the items processed from now on as damaged
func (s *Session) SetDamaged(damaged bool) {
	if s.state.Terminal() {
		return
	}
	s.damaged = damaged
	slog.Debug("Damaged flag changed", "rma", s.rma, "damaged", damaged)
}

// Abort discards the remaining queue. The terminal is left where it is.
func (s *Session) Abort() {
	if s.state.Terminal() {
		return
	}
	s.queue = nil
	s.state = Aborted
	s.message = "Session aborted."
	s.end()
	slog.Info("RMA session aborted by operator", "rma", s.rma, "session_id", s.id)
}

// ID returns the session ID
func (s *Session) ID() string {
	return s.id
}

// State returns the current state
func (s *Session) State() State {
	return s.state
}

// Status returns a snapshot of the session
func (s *Session) Status() Status {
	remaining := 0
	for _, entry := range s.queue {
		if !entry.done {
			remaining++
		}
	}

	status := Status{
		ID:         s.id,
		RMA:        s.rma,
		Receiver:   s.receiver,
		AssignedTo: s.assignedTo,
		State:      s.state,
		Damaged:    s.damaged,
		Serials:    s.serials,
		Remaining:  remaining,
		Processed:  s.processed,
		Failures:   append([]ItemFailure{}, s.failures...),
		Message:    s.message,
	}
	if !s.date.IsZero() {
		status.EntryDate = s.date.String()
	}
	if s.lastItem != nil {
		last := *s.lastItem
		status.LastItem = &last
	}
	return status
}

func (s *Session) vars(serial string) map[string]string {
	vars := map[string]string{terminal.VarRMA: s.rma}
	if serial != "" {
		vars[terminal.VarSerial] = serial
	}
	if !s.date.IsZero() {
		vars[terminal.VarDate] = s.date.String()
	}
	return vars
}

func (s *Session) end() {
	now := s.deps.TimeSource.Now()
	s.endedAt = &now
	s.record()
}

func (s *Session) record() {
	if s.deps.History == nil {
		return
	}
	rec := &history.Session{
		ID:         s.id,
		RMA:        s.rma,
		Receiver:   s.receiver,
		AssignedTo: s.assignedTo,
		State:      s.state.String(),
		Serials:    s.serials,
		Processed:  s.processed,
		Failed:     len(s.failures),
		Message:    s.message,
		StartedAt:  s.startedAt,
		EndedAt:    s.endedAt,
	}
	if !s.date.IsZero() {
		rec.EntryDate = s.date.String()
	}
	if err := s.deps.History.SaveSession(rec); err != nil {
		slog.Error("Failed to save session history", "session_id", s.id, "error", err)
	}
}

func (s *Session) recordItem(item *history.Item) {
	if s.deps.History == nil {
		return
	}
	if err := s.deps.History.SaveItem(item); err != nil {
		slog.Error("Failed to save item history", "session_id", s.id, "serial", item.Serial, "error", err)
	}
}
