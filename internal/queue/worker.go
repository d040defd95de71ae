package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HandlerFunc executes one task.
type HandlerFunc func(ctx context.Context, t *Task) error

// Source yields claimed, due tasks.
type Source interface {
	Due(ctx context.Context, n int64) ([]*Task, error)
}

// Worker polls a Source and runs tasks one at a time, so handlers never run
// concurrently with each other.
type Worker struct {
	src      Source
	interval time.Duration
	log      *logrus.Entry

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewWorker(src Source, interval time.Duration, log *logrus.Entry) *Worker {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Worker{src: src, interval: interval, log: log, handlers: map[string]HandlerFunc{}}
}

// Handle registers the handler for a task kind.
func (w *Worker) Handle(kind string, h HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = h
}

// Run polls until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.WithField("interval", w.interval.String()).Info("task worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("task worker stopped")
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain runs every task that is currently due and returns how many ran.
func (w *Worker) Drain(ctx context.Context) int {
	ran := 0
	for {
		tasks, err := w.src.Due(ctx, 16)
		if err != nil {
			w.log.WithError(err).Error("poll task queue")
			return ran
		}
		if len(tasks) == 0 {
			return ran
		}
		for _, t := range tasks {
			w.dispatch(ctx, t)
			ran++
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, t *Task) {
	log := w.log.WithFields(logrus.Fields{"task_id": t.ID, "kind": t.Kind})

	w.mu.RLock()
	h, ok := w.handlers[t.Kind]
	w.mu.RUnlock()
	if !ok {
		log.Warn("no handler for task kind")
		return
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return h(ctx, t)
	}()
	log = log.WithField("duration", time.Since(start).String())
	if err != nil {
		log.WithError(err).Error("task failed")
		return
	}
	log.Debug("task done")
}
