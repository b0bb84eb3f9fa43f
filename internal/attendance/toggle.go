package attendance

import (
	"context"
	"errors"
	"log"
	"time"

	"kiosk/internal/directory"
	"kiosk/internal/metrics"
)

// TapStatus classifies the outcome of a card tap.
type TapStatus string

const (
	TapEntry        TapStatus = "entry"
	TapExit         TapStatus = "exit"
	TapUnregistered TapStatus = "unregistered"
)

// TapOutcome describes what a tap did.
type TapOutcome struct {
	Status TapStatus      `json:"status"`
	User   directory.User `json:"user,omitempty"`
	Log    Log            `json:"log,omitempty"`
}

// ToggleEngine turns card taps into alternating entry/exit logs. Per user it
// is a two-state machine driven by the latest log: last action entry -> next
// is exit, anything else (no log, or last was exit) -> next is entry. It does
// not reason about elapsed time or cross-day carry-over; an entry left open
// yesterday still toggles to exit on the next tap.
//
// The latest-log read and the append are not isolated from each other; two
// concurrent taps on the same card can both read the same state and write
// two consecutive entries. Accepted for the single-kiosk deployment.
type ToggleEngine struct {
	dir  directory.Directory
	logs LogStore
	now  func() time.Time
}

// NewToggleEngine wires the engine to its stores.
func NewToggleEngine(dir directory.Directory, logs LogStore) *ToggleEngine {
	return &ToggleEngine{dir: dir, logs: logs, now: time.Now}
}

// WithClock overrides the time source for tests.
func (e *ToggleEngine) WithClock(now func() time.Time) *ToggleEngine {
	e.now = now
	return e
}

// Tap resolves the card's owner and records the alternating log. An unknown
// card yields TapUnregistered with no mutation and no error.
func (e *ToggleEngine) Tap(ctx context.Context, cardID string) (TapOutcome, error) {
	user, err := e.dir.FindByCardID(ctx, cardID)
	if errors.Is(err, directory.ErrNotFound) {
		metrics.TapsTotal.WithLabelValues(string(TapUnregistered)).Inc()
		return TapOutcome{Status: TapUnregistered}, nil
	}
	if err != nil {
		return TapOutcome{}, err
	}
	return e.toggle(ctx, user, cardID)
}

// ToggleUser records a toggle for a known user without a card, the manual
// attendance path on the kiosk.
func (e *ToggleEngine) ToggleUser(ctx context.Context, uid string) (TapOutcome, error) {
	user, err := e.dir.GetUser(ctx, uid)
	if err != nil {
		return TapOutcome{}, err
	}
	return e.toggle(ctx, user, "")
}

func (e *ToggleEngine) toggle(ctx context.Context, user directory.User, cardID string) (TapOutcome, error) {
	last, err := e.logs.LatestLogForUser(ctx, user.UID)
	if err != nil {
		return TapOutcome{}, err
	}
	next := TypeEntry
	if last != nil && last.Type == TypeEntry {
		next = TypeExit
	}

	entry := Log{
		UID:       user.UID,
		CardID:    cardID,
		Type:      next,
		Timestamp: e.now(),
	}
	if err := e.logs.AppendLog(ctx, entry); err != nil {
		return TapOutcome{}, err
	}

	// Convenience denormalization only; the aggregators always recompute
	// from the log stream, so a failure here is logged and swallowed.
	status := directory.StatusActive
	if next == TypeExit {
		status = directory.StatusInactive
	}
	activity := entry.Timestamp
	if err := e.dir.UpdateUser(ctx, user.UID, directory.UserUpdate{
		Status:       &status,
		LastActivity: &activity,
	}); err != nil {
		log.Printf("user %s status update failed: %v", user.UID, err)
	}

	outcome := TapOutcome{Status: TapStatus(next), User: user, Log: entry}
	metrics.TapsTotal.WithLabelValues(string(outcome.Status)).Inc()
	return outcome, nil
}
