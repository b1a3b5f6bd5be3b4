package aggregator_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"feedstrip/aggregator"
	"feedstrip/models"
	"feedstrip/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	failures map[string]models.ErrorKind
	delay    func(identity string) time.Duration
	inflight atomic.Int32
	peak     atomic.Int32
}

func (f *stubFetcher) Fetch(ctx context.Context, identity string) models.FeedRenderResult {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.delay != nil {
		time.Sleep(f.delay(identity))
	}
	if kind, ok := f.failures[identity]; ok {
		return models.Failed(identity, kind)
	}
	return models.Ok(identity, "Title "+identity, []models.FeedItem{{Title: "item"}})
}

func sources(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://feed%d.example.com/rss", i)
	}
	return out
}

func TestRunStoresOneEntryPerSource(t *testing.T) {
	s := store.New()
	s.Set("https://stale.example.com/rss", models.Ok("https://stale.example.com/rss", "stale", nil))

	srcs := sources(8)
	cycle := aggregator.New(&stubFetcher{
		// Finish in reverse order to make completion order differ from source order
		delay: func(id string) time.Duration {
			for i, s := range srcs {
				if s == id {
					return time.Duration(len(srcs)-i) * time.Millisecond
				}
			}
			return 0
		},
	}, s, 0, nil)

	report := cycle.Run(context.Background(), srcs, nil)

	assert.Equal(t, 8, report.Sources)
	assert.Equal(t, 8, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 8, s.Len())
	for _, id := range srcs {
		result, ok := s.Get(id)
		require.True(t, ok, id)
		assert.Equal(t, id, result.Source)
	}
	_, ok := s.Get("https://stale.example.com/rss")
	assert.False(t, ok, "store is cleared at cycle start")
}

func TestRunIsolatesFailures(t *testing.T) {
	s := store.New()
	a, b, c := "https://a.example.com/rss", "https://b.example.com/rss", "https://c.example.com/rss"
	cycle := aggregator.New(&stubFetcher{
		failures: map[string]models.ErrorKind{b: models.NetworkError},
	}, s, 0, nil)

	report := cycle.Run(context.Background(), []string{a, b, c}, nil)

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	ra, _ := s.Get(a)
	rb, _ := s.Get(b)
	rc, _ := s.Get(c)
	assert.True(t, ra.OK())
	assert.Equal(t, models.NetworkError, rb.Reason)
	assert.True(t, rc.OK())
}

func TestRunDropsUnadmittedResults(t *testing.T) {
	s := store.New()
	srcs := sources(3)
	removed := srcs[1]

	cycle := aggregator.New(&stubFetcher{}, s, 0, nil)
	report := cycle.Run(context.Background(), srcs, func(id string) bool { return id != removed })

	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, 2, report.Succeeded)
	_, ok := s.Get(removed)
	assert.False(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	fetcher := &stubFetcher{delay: func(string) time.Duration { return 5 * time.Millisecond }}
	cycle := aggregator.New(fetcher, store.New(), 2, nil)

	report := cycle.Run(context.Background(), sources(6), nil)

	assert.Equal(t, 6, report.Succeeded)
	assert.LessOrEqual(t, fetcher.peak.Load(), int32(2))
}

func TestRunWaitsForSlowFetch(t *testing.T) {
	release := make(chan struct{})
	slow := "https://slow.example.com/rss"

	fetcher := &stubFetcher{delay: func(id string) time.Duration {
		if id == slow {
			<-release
		}
		return 0
	}}
	s := store.New()
	cycle := aggregator.New(fetcher, s, 0, nil)

	done := make(chan aggregator.Report)
	go func() { done <- cycle.Run(context.Background(), []string{"https://fast.example.com/rss", slow}, nil) }()

	select {
	case <-done:
		t.Fatal("cycle completed before every fetch resolved")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	report := <-done
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 2, s.Len())
}

func TestRunEmitsEvents(t *testing.T) {
	events := make(chan interface{}, 10)
	cycle := aggregator.New(&stubFetcher{}, store.New(), 0, events)

	cycle.Run(context.Background(), sources(2), nil)
	close(events)

	var started, fetched, completed int
	for event := range events {
		switch e := event.(type) {
		case models.CycleStartedEvent:
			started++
			assert.Equal(t, 2, e.Sources)
		case models.SourceFetchedEvent:
			fetched++
			assert.True(t, e.Admitted)
		case models.CycleCompletedEvent:
			completed++
			assert.Equal(t, 2, e.Succeeded)
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, 2, fetched)
	assert.Equal(t, 1, completed)
}

func TestRunWithNoSources(t *testing.T) {
	s := store.New()
	report := aggregator.New(&stubFetcher{}, s, 0, nil).Run(context.Background(), nil, nil)
	assert.Equal(t, aggregator.Report{Duration: report.Duration}, report)
	assert.Equal(t, 0, s.Len())
}
