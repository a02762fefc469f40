package api

import (
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"mailbridge/syncer"
	"mailbridge/utils"
)

// Hub fans sync lifecycle events out to connected websocket clients. It is
// the syncer's Publisher; a hub with no subscribers drops events.
type Hub struct {
	subscribers map[string]chan syncer.Event
	mu          sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan syncer.Event)}
}

// Publish delivers an event to every subscriber. Slow subscribers are
// skipped rather than blocking the sync pass.
func (h *Hub) Publish(event syncer.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *Hub) subscribe() (string, chan syncer.Event) {
	id := uuid.New().String()
	ch := make(chan syncer.Event, 16)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	return id, ch
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
	h.mu.Unlock()
}

// HandleWebSocket streams sync events to one websocket client until it
// disconnects.
func (h *Hub) HandleWebSocket(c *websocket.Conn) {
	id, ch := h.subscribe()
	defer func() {
		h.unsubscribe(id)
		c.Close()
		utils.Log.Debug("sync event subscriber disconnected: %s", id)
	}()

	utils.Log.Debug("sync event subscriber connected: %s", id)

	// Reader goroutine notices the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := c.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
