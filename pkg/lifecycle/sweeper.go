package lifecycle

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const sweepBatchSize = 50

// Sweeper retries failed departures on a schedule
type Sweeper struct {
	lifecycle *Lifecycle
	cron      *cron.Cron
	schedule  string
	log       *logrus.Logger
}

// NewSweeper creates a sweeper. The schedule uses cron syntax; an
// empty string defaults to once a minute.
func NewSweeper(lifecycle *Lifecycle, schedule string, log *logrus.Logger) *Sweeper {
	if schedule == "" {
		schedule = "@every 1m"
	}
	if log == nil {
		log = logrus.New()
	}
	return &Sweeper{
		lifecycle: lifecycle,
		cron:      cron.New(),
		schedule:  schedule,
		log:       log,
	}
}

// Start begins the retry schedule
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep retries every failed departure currently on record. Individual
// failures are logged and left for the next pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	failed, err := s.lifecycle.Departures().ListFailed(ctx, sweepBatchSize)
	if err != nil {
		s.log.WithError(err).Error("failed to list departures for retry")
		return
	}

	for _, d := range failed {
		log := s.log.WithFields(logrus.Fields{
			"departure": d.ID,
			"member":    d.MemberID,
			"attempts":  d.Attempts,
		})
		if err := s.lifecycle.Retry(ctx, d.ID); err != nil {
			log.WithError(err).Warn("departure retry failed")
			continue
		}
		log.Info("departure retried")
	}
}
