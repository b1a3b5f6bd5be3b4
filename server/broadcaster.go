package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"feedstrip/models"

	log "github.com/sirupsen/logrus"
)

// Broadcaster fans cycle events out to every connected SSE client
type Broadcaster struct {
	sync.RWMutex
	clients map[string]chan interface{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]chan interface{}),
	}
}

// Run forwards events until the channel closes or ctx is cancelled
func (b *Broadcaster) Run(ctx context.Context, events <-chan interface{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			b.Broadcast(event)
		}
	}
}

func (b *Broadcaster) Broadcast(event interface{}) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.clients {
		select {
		case client <- event: // Non-blocking send
		default:
			log.Warnf("Client channel full, skipping event for client: %v", id)
		}
	}
}

func (b *Broadcaster) AddClient(key string, client chan interface{}) {
	b.Lock()
	defer b.Unlock()
	b.clients[key] = client
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Adding client to broadcaster")
}

func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	if client, ok := b.clients[key]; ok {
		close(client)
		delete(b.clients, key)
	}

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Removed client from broadcaster")
}

func (b *Broadcaster) Clients() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, client := range b.clients {
		close(client)
		delete(b.clients, key)
	}
}

// eventName maps a cycle event to its SSE event type
func eventName(event interface{}) (string, bool) {
	switch event.(type) {
	case models.CycleStartedEvent:
		return "cycle-started", true
	case models.SourceFetchedEvent:
		return "source-fetched", true
	case models.CycleCompletedEvent:
		return "cycle-completed", true
	}
	return "", false
}

func writeEvent(w *bufio.Writer, name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return w.Flush()
}
