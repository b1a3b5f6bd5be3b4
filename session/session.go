// Package session wires the registry, the store, the aggregation cycle and
// the windower into the single state object a user interface drives.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"feedstrip/aggregator"
	"feedstrip/db"
	"feedstrip/models"
	"feedstrip/registry"
	"feedstrip/store"
	"feedstrip/window"

	log "github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("session closed")

type Options struct {
	KV             db.KeyValueStore
	Fetcher        aggregator.Fetcher
	MaxSources     int
	MinColumnWidth int
	Concurrency    int
	// Width is the initial viewport width in pixels
	Width int
	// Events receives cycle events, may be nil
	Events chan<- interface{}
}

type Session struct {
	mu       sync.Mutex
	kv       db.KeyValueStore
	registry *registry.Registry
	store    *store.FeedStore
	cycle    *aggregator.Cycle
	windower *window.Windower
	theme    models.Theme

	// generation identifies the latest cycle, results of older cycles are discarded
	generation  atomic.Uint64
	done        chan struct{}
	cancelCycle context.CancelFunc
	lastReport  aggregator.Report

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New restores the persisted sources and theme. No cycle runs until Refresh.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.KV == nil || opts.Fetcher == nil {
		return nil, errors.New("session requires a key-value store and a fetcher")
	}

	feedStore := store.New()
	reg, err := registry.Load(ctx, opts.KV, opts.MaxSources, feedStore)
	if err != nil {
		return nil, err
	}

	theme := models.ThemeLight
	raw, ok, err := opts.KV.Get(ctx, db.KeyTheme)
	if err != nil {
		return nil, fmt.Errorf("error loading theme: %w", err)
	}
	if ok {
		if parsed, err := models.ParseTheme(raw); err == nil {
			theme = parsed
		} else {
			log.WithFields(log.Fields{
				"theme": raw,
			}).Warn("Ignoring persisted theme")
		}
	}

	base, cancel := context.WithCancel(context.Background())
	s := &Session{
		kv:       opts.KV,
		registry: reg,
		store:    feedStore,
		cycle:    aggregator.New(opts.Fetcher, feedStore, opts.Concurrency, opts.Events),
		windower: window.New(opts.MinColumnWidth),
		theme:    theme,
		ctx:      base,
		cancel:   cancel,
	}
	s.windower.Recompute(reg.List(), feedStore, opts.Width)

	log.WithFields(log.Fields{
		"sources": reg.Len(),
		"theme":   theme,
	}).Info("Session ready")

	return s, nil
}

// Refresh starts a new aggregation cycle over the current sources and
// supersedes any cycle still running. It returns without waiting.
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if s.cancelCycle != nil {
		s.cancelCycle()
	}

	gen := s.generation.Add(1)
	ctx, cancel := context.WithCancel(s.ctx)
	prev := s.done
	done := make(chan struct{})
	s.cancelCycle = cancel
	s.done = done

	sources := s.registry.List()
	admit := func(identity string) bool {
		// Called under the store lock, must not take s.mu
		return s.generation.Load() == gen && s.registry.Contains(identity)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer cancel()

		// Cycles never overlap, the previous one was cancelled above and
		// must finish before this one clears the store.
		if prev != nil {
			<-prev
		}
		if ctx.Err() != nil {
			return
		}

		report := s.cycle.Run(ctx, sources, admit)

		s.mu.Lock()
		if s.generation.Load() == gen {
			s.lastReport = report
		}
		s.mu.Unlock()
	}()

	return nil
}

// Wait blocks until the latest cycle has finished, following any cycle
// that supersedes it while waiting.
func (s *Session) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		done := s.done
		s.mu.Unlock()
		if done == nil {
			return nil
		}

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}

		s.mu.Lock()
		latest := s.done
		s.mu.Unlock()
		if latest == done {
			return nil
		}
	}
}

// AddSource registers rawURL and starts a new cycle
func (s *Session) AddSource(ctx context.Context, rawURL string) (string, error) {
	identity, err := s.registry.Add(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if err := s.Refresh(); err != nil {
		return identity, err
	}
	return identity, nil
}

// RemoveSource drops a source and its result. No cycle is started.
func (s *Session) RemoveSource(ctx context.Context, identity string) error {
	if normalized, err := registry.Normalize(identity); err == nil {
		identity = normalized
	}
	if err := s.registry.Remove(ctx, identity); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.windower.Present(s.registry.List(), s.store)
	return nil
}

func (s *Session) Sources() []string {
	return s.registry.List()
}

func (s *Session) MaxSources() int {
	return s.registry.Cap()
}

func (s *Session) Result(identity string) (models.FeedRenderResult, bool) {
	return s.store.Get(identity)
}

func (s *Session) LastReport() aggregator.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingLocked()
}

func (s *Session) loadingLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Session) View() window.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present(s.windower.Present(s.registry.List(), s.store))
}

func (s *Session) Resize(width int) window.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present(s.windower.Recompute(s.registry.List(), s.store, width))
}

func (s *Session) Next() window.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present(s.windower.Next(s.registry.List(), s.store))
}

func (s *Session) Previous() window.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present(s.windower.Previous(s.registry.List(), s.store))
}

func (s *Session) present(view window.View) window.View {
	view.Loading = s.loadingLocked()
	return view
}

func (s *Session) Theme() models.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

func (s *Session) SetTheme(ctx context.Context, theme models.Theme) error {
	if _, err := models.ParseTheme(string(theme)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setThemeLocked(ctx, theme)
}

func (s *Session) ToggleTheme(ctx context.Context) (models.Theme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.theme.Toggle()
	if err := s.setThemeLocked(ctx, next); err != nil {
		return "", err
	}
	return next, nil
}

func (s *Session) setThemeLocked(ctx context.Context, theme models.Theme) error {
	if err := s.kv.Set(ctx, db.KeyTheme, string(theme)); err != nil {
		return fmt.Errorf("error persisting theme: %w", err)
	}
	s.theme = theme
	return nil
}

// Close cancels any running cycle and waits for it to return
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Info("Session closed")
}
