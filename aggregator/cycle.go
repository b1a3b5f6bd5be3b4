// Package aggregator runs one fetch-all-sources pass and fills the FeedStore.
package aggregator

import (
	"context"
	"time"

	"feedstrip/models"
	"feedstrip/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedstrip_cycles_total",
		Help: "The total number of completed aggregation cycles",
	})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedstrip_cycle_duration_seconds",
		Help:    "Time from cycle start until every fetch has resolved",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // Start at 100ms, double each bucket, 10 buckets
	})

	droppedResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedstrip_dropped_results_total",
		Help: "Results discarded because their source left the registry or the cycle was superseded",
	})
)

// Fetcher resolves one source. Implementations report failures inside the result.
type Fetcher interface {
	Fetch(ctx context.Context, identity string) models.FeedRenderResult
}

// AdmitFunc decides at write time whether a result may enter the store
type AdmitFunc func(identity string) bool

// Report summarizes a finished cycle
type Report struct {
	Sources   int           `json:"sources"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Dropped   int           `json:"dropped"`
	Duration  time.Duration `json:"duration"`
}

type Cycle struct {
	fetcher     Fetcher
	store       *store.FeedStore
	concurrency int
	events      chan<- interface{}
}

// New creates a cycle writing into s. concurrency bounds simultaneous
// fetches, 0 launches one goroutine per source. events may be nil.
func New(fetcher Fetcher, s *store.FeedStore, concurrency int, events chan<- interface{}) *Cycle {
	return &Cycle{
		fetcher:     fetcher,
		store:       s,
		concurrency: concurrency,
		events:      events,
	}
}

func (c *Cycle) Store() *store.FeedStore {
	return c.store
}

// Run clears the store, fetches every source concurrently and returns once
// all fetches have resolved. Each result is written under its own identity
// as soon as it arrives, subject to admit.
func (c *Cycle) Run(ctx context.Context, sources []string, admit AdmitFunc) Report {
	start := time.Now()
	c.store.Clear()
	c.emit(models.CycleStartedEvent{Sources: len(sources)})

	log.WithFields(log.Fields{
		"sources":     len(sources),
		"concurrency": c.concurrency,
	}).Info("Starting aggregation cycle")

	outcomes := make([]outcome, len(sources))

	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}

	for i, identity := range sources {
		g.Go(func() error {
			result := c.fetcher.Fetch(ctx, identity)
			admitted := c.store.SetIf(identity, result, admit)
			outcomes[i] = outcome{ok: result.OK(), admitted: admitted}

			if !admitted {
				droppedResults.Inc()
				log.WithFields(log.Fields{
					"source": identity,
				}).Info("Dropping result for source no longer in the registry")
			}

			c.emit(models.SourceFetchedEvent{
				Source:   identity,
				Reason:   result.Reason,
				Admitted: admitted,
			})
			return nil
		})
	}

	// Fetch never fails, Wait is only the join barrier
	_ = g.Wait()

	report := summarize(outcomes)
	report.Duration = time.Since(start)

	cyclesTotal.Inc()
	cycleDuration.Observe(report.Duration.Seconds())

	log.WithFields(log.Fields{
		"sources":   report.Sources,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"dropped":   report.Dropped,
		"duration":  report.Duration,
	}).Info("Aggregation cycle complete")

	c.emit(models.CycleCompletedEvent{
		Sources:   report.Sources,
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		Dropped:   report.Dropped,
		Duration:  report.Duration,
	})

	return report
}

// emit never blocks the cycle on a slow consumer
func (c *Cycle) emit(event interface{}) {
	if c.events == nil {
		return
	}
	select {
	case c.events <- event:
	default:
		log.Warn("Event channel full, skipping cycle event")
	}
}
