package roster

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"clubhouse/cmd/internal/attendance"

	"github.com/juju/clock"
)

// Hub fans register events out to connected clients. It implements attendance.Notifier.
type Hub struct {
	log   *slog.Logger
	clock clock.Clock

	mu      sync.RWMutex
	clients map[string]*Client

	dropped atomic.Uint64
}

func NewHub(log *slog.Logger, clk clock.Clock) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Hub{log: log, clock: clk, clients: make(map[string]*Client)}
}

func (h *Hub) Join(c *Client) {
	if c == nil || c.ID == "" {
		return
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("roster.client.join", "client_id", c.ID, "user_id", c.UserID, "clients", n)
}

// Leave removes the client and then closes it, so no broadcaster holds it while it shuts down.
func (h *Hub) Leave(id string) {
	h.mu.Lock()
	c := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()

	if c != nil {
		c.Close()
		h.log.Info("roster.client.leave", "client_id", id)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many envelopes were discarded because a client queue was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Broadcast never blocks.
func (h *Hub) Broadcast(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case <-c.Done():
			continue
		default:
		}

		select {
		case c.Send <- env:
		default:
			h.dropped.Add(1)
			h.log.Debug("roster.broadcast.drop", "client_id", c.ID, "type", env.Type)
		}
	}
}

// Publish converts a committed transition into an envelope and broadcasts it.
func (h *Hub) Publish(ev attendance.Event) {
	env, err := newEnvelope(string(ev.Type), EventPayload{
		RecordID:        ev.RecordID,
		UserID:          ev.UserID,
		At:              ev.At,
		DurationMinutes: ev.DurationMinutes,
	}, h.clock.Now())
	if err != nil {
		h.log.Error("roster.publish.encode.fail", "err", err)
		return
	}
	h.Broadcast(env)
}
