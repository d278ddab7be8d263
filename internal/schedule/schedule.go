// Package schedule triggers periodic runs. The cron callback never touches
// loop state directly: it submits a signal on a channel that the loop's
// owner goroutine drains, so all core mutation stays on one goroutine.
package schedule

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Trigger struct {
	cron *cron.Cron
	runs chan struct{}
	log  *logrus.Entry
}

// New builds a trigger for the given cron spec (standard 5-field format or
// descriptors like "@every 1h").
func New(spec string, logger *logrus.Logger) (*Trigger, error) {
	t := &Trigger{
		cron: cron.New(),
		runs: make(chan struct{}, 1),
		log:  logger.WithField("component", "schedule"),
	}
	_, err := t.cron.AddFunc(spec, t.fire)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// fire submits one run signal. If a signal is already pending the tick is
// dropped rather than queued, so a slow run never builds a backlog.
func (t *Trigger) fire() {
	select {
	case t.runs <- struct{}{}:
		t.log.Info("scheduled run triggered")
	default:
		t.log.Warn("previous scheduled run still pending, skipping tick")
	}
}

// C is the channel the loop's owner goroutine receives run signals on.
func (t *Trigger) C() <-chan struct{} {
	return t.runs
}

func (t *Trigger) Start() {
	t.cron.Start()
}

// Stop halts the cron scheduler; a pending signal stays readable.
func (t *Trigger) Stop() {
	t.cron.Stop()
}
