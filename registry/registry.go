// Package registry owns the ordered list of feed sources and persists it
// through a key-value store.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"feedstrip/db"
	"feedstrip/models"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// Evictor drops cached state for a source that left the registry
type Evictor interface {
	Evict(identity string)
}

type Registry struct {
	mu      sync.RWMutex
	kv      db.KeyValueStore
	evictor Evictor
	max     int
	sources []string
}

// Load restores the persisted source list. Entries that no longer
// normalize, duplicates and entries beyond max are skipped.
func Load(ctx context.Context, kv db.KeyValueStore, maxSources int, evictor Evictor) (*Registry, error) {
	r := &Registry{
		kv:      kv,
		evictor: evictor,
		max:     maxSources,
		sources: []string{},
	}

	raw, ok, err := kv.Get(ctx, db.KeyFeedURLs)
	if err != nil {
		return nil, fmt.Errorf("error loading sources: %w", err)
	}
	if !ok || raw == "" {
		return r, nil
	}

	var stored []string
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("error decoding sources: %w", err)
	}

	for _, entry := range stored {
		identity, err := Normalize(entry)
		if err != nil || lo.Contains(r.sources, identity) || len(r.sources) >= maxSources {
			log.WithFields(log.Fields{
				"source": entry,
			}).Warn("Skipping persisted source")
			continue
		}
		r.sources = append(r.sources, identity)
	}

	return r, nil
}

// Normalize validates rawURL as an absolute http(s) URL and returns the
// identity used as the key across registry and store.
func Normalize(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", models.NewFeedError(models.InvalidURL, rawURL, nil)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", models.NewFeedError(models.InvalidURL, rawURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", models.NewFeedError(models.InvalidURL, rawURL, nil)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", models.NewFeedError(models.InvalidURL, rawURL, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	return u.String(), nil
}

// Add appends rawURL and returns its identity
func (r *Registry) Add(ctx context.Context, rawURL string) (string, error) {
	identity, err := Normalize(rawURL)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sources) >= r.max {
		return "", models.NewFeedError(models.CapacityExceeded, identity, nil)
	}
	if lo.Contains(r.sources, identity) {
		return "", models.NewFeedError(models.DuplicateSource, identity, nil)
	}

	next := append(slices.Clone(r.sources), identity)
	if err := r.persist(ctx, next); err != nil {
		return "", err
	}
	r.sources = next

	log.WithFields(log.Fields{
		"source": identity,
		"count":  len(r.sources),
	}).Info("Added source")

	return identity, nil
}

// Remove drops identity and evicts its cached result
func (r *Registry) Remove(ctx context.Context, identity string) error {
	r.mu.Lock()
	idx := lo.IndexOf(r.sources, identity)
	if idx < 0 {
		r.mu.Unlock()
		return models.NewFeedError(models.NotFound, identity, nil)
	}

	next := append(slices.Clone(r.sources[:idx]), r.sources[idx+1:]...)
	if err := r.persist(ctx, next); err != nil {
		r.mu.Unlock()
		return err
	}
	r.sources = next
	count := len(next)
	r.mu.Unlock()

	if r.evictor != nil {
		r.evictor.Evict(identity)
	}

	log.WithFields(log.Fields{
		"source": identity,
		"count":  count,
	}).Info("Removed source")

	return nil
}

// List returns a snapshot of the sources in insertion order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.sources)
}

func (r *Registry) Contains(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Contains(r.sources, identity)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

func (r *Registry) Cap() int {
	return r.max
}

func (r *Registry) persist(ctx context.Context, sources []string) error {
	encoded, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("error encoding sources: %w", err)
	}
	if err := r.kv.Set(ctx, db.KeyFeedURLs, string(encoded)); err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Error("Error persisting sources")
		return fmt.Errorf("error persisting sources: %w", err)
	}
	return nil
}
