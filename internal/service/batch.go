package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jask/moneyimport/internal/formats"
	"github.com/jask/moneyimport/internal/statement"
)

// BatchState is a step of the import lifecycle.
type BatchState string

const (
	StateReceived             BatchState = "received"
	StatePreviewing           BatchState = "previewing"
	StateAwaitingConfirmation BatchState = "awaiting_confirmation"
	StateCommitting           BatchState = "committing"
	StateCompleted            BatchState = "completed"
	StateFailed               BatchState = "failed"
	StateReverted             BatchState = "reverted"
)

var (
	ErrBatchTooLarge       = errors.New("batch exceeds import limits")
	ErrPreviewExpired      = errors.New("preview handle expired or unknown")
	ErrBatchNotConfirmable = errors.New("batch is not awaiting confirmation")
	ErrNoFilesIncluded     = errors.New("no files included in batch")
)

// CommitError means the atomic persist step failed. Nothing was written.
type CommitError struct {
	Reason string
	Err    error
}

func (e *CommitError) Error() string { return "commit failed: " + e.Reason }

func (e *CommitError) Unwrap() error { return e.Err }

// transitions lists the allowed moves of an in-memory batch. reverted is
// reached by sessions, never by a batch.
var transitions = map[BatchState][]BatchState{
	StateReceived:             {StatePreviewing},
	StatePreviewing:           {StateAwaitingConfirmation},
	StateAwaitingConfirmation: {StateCommitting},
	StateCommitting:           {StateCompleted, StateFailed},
}

// batch is the server-side state behind a preview handle.
type batch struct {
	mu      sync.Mutex
	id      string
	state   BatchState
	files   []*fileState
	created time.Time
}

func newBatch(id string, now time.Time) *batch {
	return &batch{id: id, state: StateReceived, created: now}
}

func (b *batch) transition(to BatchState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transitionLocked(to)
}

func (b *batch) transitionLocked(to BatchState) error {
	for _, next := range transitions[b.state] {
		if next == to {
			b.state = to
			return nil
		}
	}
	return fmt.Errorf("batch %s: %s -> %s: %w", b.id, b.state, to, ErrBatchNotConfirmable)
}

func (b *batch) State() BatchState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// fileState is one uploaded file and what the registry made of it.
type fileState struct {
	index     int
	name      string
	size      int
	detection formats.Detection
	parsed    statement.Parsed
	err       error
	// account override applied at confirmation
	account string
}

func (f *fileState) failed() bool { return f.err != nil }

// drafts returns the parsed drafts with the account override applied.
func (f *fileState) drafts() []statement.Draft {
	if f.account == "" {
		return f.parsed.Drafts
	}
	out := make([]statement.Draft, len(f.parsed.Drafts))
	for i, d := range f.parsed.Drafts {
		d.AccountLabel = f.account
		out[i] = d
	}
	return out
}
