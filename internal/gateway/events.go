package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/rfontaine/sundog/internal/agent"
)

// subscriberBuffer bounds the per-connection event queue. A subscriber
// that falls this far behind loses events rather than stalling the loop.
const subscriberBuffer = 64

// EventHub fans loop events out to websocket subscribers per job ID.
// It implements agent.Sink.
type EventHub struct {
	mu   sync.Mutex
	subs map[string]map[chan agent.Event]struct{}
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[string]map[chan agent.Event]struct{})}
}

// Emit implements agent.Sink. Slow subscribers drop events.
func (h *EventHub) Emit(ev agent.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *EventHub) subscribe(jobID string) chan agent.Event {
	ch := make(chan agent.Event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan agent.Event]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	return ch
}

func (h *EventHub) unsubscribe(jobID string, ch chan agent.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs[jobID], ch)
	if len(h.subs[jobID]) == 0 {
		delete(h.subs, jobID)
	}
}

// handleEvents upgrades to a websocket and streams the job's events as
// JSON messages until the client disconnects or the job goes terminal.
func (g *Gateway) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "id")

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("websocket accept failed", "error", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusInternalError, "unexpected close") }()

		ch := g.hub.subscribe(jobID)
		defer g.hub.unsubscribe(jobID, ch)

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close(websocket.StatusGoingAway, "server closing")
				return
			case ev := <-ch:
				if err := writeEvent(ctx, conn, ev); err != nil {
					return
				}
				if ev.Type == agent.EventStatus && ev.Status.Terminal() {
					_ = conn.Close(websocket.StatusNormalClosure, "job finished")
					return
				}
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev agent.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

var _ agent.Sink = (*EventHub)(nil)
