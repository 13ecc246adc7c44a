package jobs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
)

// Entry schedules one job at a daily wall-clock time ("HH:MM")
type Entry struct {
	Job domain.JobName
	At  string
}

// Scheduler fires each configured job once a day at its wall-clock time in
// the configured timezone. One goroutine per entry; a job body failure is
// logged and the loop re-arms for the next day. Stop cancels all pending
// timers and waits for in-flight runs to finish.
type Scheduler struct {
	Runner   *Runner
	Location *time.Location
	Entries  []Entry
	Log      zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler validates the entries and creates a stopped scheduler
func NewScheduler(runner *Runner, location *time.Location, entries []Entry, log zerolog.Logger) (*Scheduler, error) {
	for _, e := range entries {
		if !e.Job.Valid() {
			return nil, fmt.Errorf("unknown job %q in schedule", e.Job)
		}
		if _, _, err := parseClock(e.At); err != nil {
			return nil, fmt.Errorf("invalid schedule time for %s: %w", e.Job, err)
		}
	}

	return &Scheduler{
		Runner:   runner,
		Location: location,
		Entries:  entries,
		Log:      log,
	}, nil
}

// Start launches the timer loops
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, entry := range s.Entries {
		hour, minute, _ := parseClock(entry.At)
		s.wg.Add(1)
		go s.loop(ctx, entry.Job, hour, minute)

		s.Log.Info().
			Str("job", string(entry.Job)).
			Str("at", entry.At).
			Str("timezone", s.Location.String()).
			Msg("job scheduled")
	}
}

// Stop cancels all pending timers and waits for in-flight runs
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job domain.JobName, hour, minute int) {
	defer s.wg.Done()

	for {
		next := nextRunAfter(time.Now().In(s.Location), hour, minute)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := s.Runner.Run(ctx, job); err != nil {
				// The loop must survive body failures across runs
				s.Log.Error().Str("job", string(job)).Err(err).Msg("scheduled run failed")
			}
		}
	}
}

// nextRunAfter returns the next instant at hour:minute strictly after now,
// in now's location
func nextRunAfter(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func parseClock(value string) (hour, minute int, err error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", value)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}

	return hour, minute, nil
}
