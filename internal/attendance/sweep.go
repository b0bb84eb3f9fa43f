package attendance

import (
	"context"
	"log"
	"time"

	"kiosk/internal/directory"
)

// SweepResult tallies one forced-checkout run.
type SweepResult struct {
	Swept    int `json:"swept"`
	NoAction int `json:"no_action"`
	Failed   int `json:"failed"`
}

// ForcedCheckout closes the day: every user whose last log today is an open
// entry gets an exit appended. Run at closing time so nobody stays "active"
// overnight.
type ForcedCheckout struct {
	dir  directory.Directory
	logs LogStore
	now  func() time.Time
}

// NewForcedCheckout wires the sweep.
func NewForcedCheckout(dir directory.Directory, logs LogStore) *ForcedCheckout {
	return &ForcedCheckout{dir: dir, logs: logs, now: time.Now}
}

// WithClock overrides the time source for tests.
func (s *ForcedCheckout) WithClock(now func() time.Time) *ForcedCheckout {
	s.now = now
	return s
}

// Run performs one sweep. Per-user failures are counted and logged, not
// fatal; the rest of the sweep continues.
func (s *ForcedCheckout) Run(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	users, err := s.dir.AllUsers(ctx)
	if err != nil {
		return res, err
	}

	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for _, u := range users {
		todays, err := s.logs.QueryUserLogs(ctx, u.UID, startOfDay, now, 1)
		if err != nil {
			log.Printf("sweep: log lookup for %s failed: %v", u.UID, err)
			res.Failed++
			continue
		}
		if len(todays) == 0 || todays[0].Type != TypeEntry {
			res.NoAction++
			continue
		}

		cardID := u.CardID
		if cardID == "" {
			cardID = "auto_checkout"
		}
		err = s.logs.AppendLog(ctx, Log{
			UID:       u.UID,
			CardID:    cardID,
			Type:      TypeExit,
			Memo:      "Forced checkout by system",
			Timestamp: now,
		})
		if err != nil {
			log.Printf("sweep: exit append for %s failed: %v", u.UID, err)
			res.Failed++
			continue
		}

		status := directory.StatusInactive
		activity := now
		if err := s.dir.UpdateUser(ctx, u.UID, directory.UserUpdate{Status: &status, LastActivity: &activity}); err != nil {
			log.Printf("sweep: status update for %s failed: %v", u.UID, err)
		}
		res.Swept++
	}
	return res, nil
}
