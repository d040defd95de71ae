// Package scheduler runs the periodic ranking maintenance jobs on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/nitesh/bizrank/internal/ranking"
)

// Job names.
const (
	JobCleanup      = "cleanup"
	JobSystemUpdate = "system_update"
	JobBadgeRefresh = "badge_refresh"
)

// jobTimeout bounds the scheduling call itself; the work runs on the queue.
const jobTimeout = time.Minute

type Jobs interface {
	ScheduleSystemUpdate(ctx context.Context, opts ranking.Options) (*ranking.Ack, error)
	ScheduleBadgeRefresh(ctx context.Context) (*ranking.Ack, error)
	ScheduleCleanup(ctx context.Context) (*ranking.Ack, error)
}

// Specs are standard cron expressions or descriptors. An empty spec disables
// the job.
type Specs struct {
	Cleanup      string
	SystemUpdate string
	BadgeRefresh string
}

type Scheduler struct {
	cron    *cron.Cron
	jobs    Jobs
	log     *logrus.Entry
	entries map[string]cron.EntryID
}

func New(jobs Jobs, specs Specs, log *logrus.Entry) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		jobs:    jobs,
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
	table := []struct {
		name string
		spec string
		run  func(ctx context.Context) (*ranking.Ack, error)
	}{
		{JobCleanup, specs.Cleanup, jobs.ScheduleCleanup},
		{JobSystemUpdate, specs.SystemUpdate, func(ctx context.Context) (*ranking.Ack, error) {
			return jobs.ScheduleSystemUpdate(ctx, ranking.Options{IncludeAspects: true})
		}},
		{JobBadgeRefresh, specs.BadgeRefresh, jobs.ScheduleBadgeRefresh},
	}
	for _, j := range table {
		if j.spec == "" {
			log.WithField("job", j.name).Info("periodic job disabled")
			continue
		}
		id, err := s.cron.AddFunc(j.spec, s.wrap(j.name, j.run))
		if err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
		s.entries[j.name] = id
	}
	return s, nil
}

func (s *Scheduler) wrap(name string, run func(ctx context.Context) (*ranking.Ack, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		log := s.log.WithField("job", name)
		ack, err := run(ctx)
		if err != nil {
			log.WithError(err).Error("periodic job failed")
			return
		}
		log.WithFields(logrus.Fields{
			"scheduled": ack.Scheduled,
			"skipped":   ack.Skipped,
		}).Info("periodic job scheduled work")
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithField("jobs", len(s.entries)).Info("scheduler started")
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Run executes a configured job immediately.
func (s *Scheduler) Run(name string) error {
	id, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("job %q not scheduled", name)
	}
	s.cron.Entry(id).Job.Run()
	return nil
}

// Next reports when a job fires next after t.
func (s *Scheduler) Next(name string, t time.Time) (time.Time, bool) {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Schedule.Next(t), true
}
