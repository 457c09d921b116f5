package automation

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/toolforge/agentgraph/internal/apperr"
	"github.com/toolforge/agentgraph/internal/automation/source"
)

// Scheduler enqueues one discover Task per configured Source on that
// source's own wall-clock schedule (spec.md §4.5 "Defaults"), using
// robfig/cron/v3 the way the rest of the pack schedules periodic work
// rather than a hand-rolled ticker loop.
type Scheduler struct {
	cron    *cron.Cron
	broker  *Broker
	sources []source.Source
	onError func(source, err string)
}

func NewScheduler(broker *Broker, sources []source.Source, onError func(source, err string)) *Scheduler {
	if onError == nil {
		onError = func(string, string) {}
	}
	return &Scheduler{
		cron:    cron.New(),
		broker:  broker,
		sources: sources,
		onError: onError,
	}
}

// Start registers each source's schedule and begins the cron loop. Returns
// an error if any source's Schedule expression fails to parse.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, src := range s.sources {
		src := src
		cfg := src.Config()
		if _, err := s.cron.AddFunc(cfg.Schedule, func() {
			task := Task{
				Kind: TaskDiscover,
				Payload: map[string]interface{}{
					"source": src.Name(),
				},
			}
			enqueueCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if _, err := s.broker.Enqueue(enqueueCtx, QueueCrawlers, task); err != nil {
				s.onError(src.Name(), err.Error())
			}
		}); err != nil {
			return apperr.Wrap(apperr.KindValidation, "invalid cron schedule for source "+src.Name(), err)
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
