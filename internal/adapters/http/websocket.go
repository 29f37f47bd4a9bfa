package http

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	"github.com/aitzolm/basomap/internal/core/domain"
	"github.com/aitzolm/basomap/internal/pkg/debounce"
)

// wsMessage is sent from client to drive the viewport stream.
type wsMessage struct {
	Action   string                  `json:"action"` // "viewport" | "subscribe" | "unsubscribe"
	Viewport *domain.Bounds          `json:"viewport,omitempty"`
	Filter   *domain.AttributeFilter `json:"filter,omitempty"`
	Channel  string                  `json:"channel,omitempty"` // "dataset" | "reports" | "broadcast"
}

// viewportQuiet is the debounce window for pan/zoom bursts. Only the
// last viewport of a burst is recomputed.
const viewportQuiet = 200 * time.Millisecond

// ViewportStreamHandler returns a handler that upgrades to WebSocket,
// streams recomputed visible sets as the client pans and zooms, and
// relays dataset events from NATS.
//
// Clients send JSON like:
//
//	{"action":"viewport","viewport":{"min_lat":43,"min_lon":-3,"max_lat":44,"max_lon":-2},"filter":{"species":["Pinus radiata"]}}
//	{"action":"subscribe","channel":"reports"}
//
// Viewport bursts are debounced; a refreshed dataset replays the last
// viewport so the client never renders from a retired working set.
func ViewportStreamHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		log.Printf("ws client connected: %s", remoteAddr)

		var mu sync.Mutex
		subs := make(map[string]*nats.Subscription) // subject -> subscription

		// Helper: thread-safe write
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		// Last viewport/filter the client asked for, replayed when the
		// dataset refreshes.
		var stateMu sync.Mutex
		var lastViewport *domain.Bounds
		var lastFilter domain.AttributeFilter

		debouncer := debounce.New(viewportQuiet)
		defer debouncer.Stop()

		pushVisibleSet := func() {
			stateMu.Lock()
			viewport := lastViewport
			filter := lastFilter
			stateMu.Unlock()
			if viewport == nil {
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			vs, err := deps.Dataset.RecomputeVisibleSet(ctx, *viewport, filter)
			if err != nil && len(vs.Rendered) == 0 && vs.VisibleCount == 0 {
				_ = writeJSON(map[string]string{"error": err.Error()})
				return
			}
			msg := map[string]interface{}{
				"type":           "visible_set",
				"records":        vs.Rendered,
				"rendered_count": len(vs.Rendered),
				"visible_count":  vs.VisibleCount,
			}
			if err != nil {
				msg["notice"] = "inventory refresh failed, showing last known data"
			}
			_ = writeJSON(msg)
		}

		// A refreshed dataset invalidates whatever the client is
		// showing; replay the last viewport against the new set.
		if deps.NATS != nil {
			refreshSubject := "forest.dataset.refreshed"
			sub, err := deps.NATS.Subscribe(refreshSubject, func(msg *nats.Msg) {
				debouncer.Trigger(pushVisibleSet)
			})
			if err != nil {
				log.Printf("ws dataset subscribe error: %v", err)
				return
			}
			subs[refreshSubject] = sub
		}

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		// Read client messages
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			switch m.Action {
			case "viewport":
				if m.Viewport == nil {
					_ = writeJSON(map[string]string{"error": "viewport is required"})
					continue
				}
				if m.Viewport.MinLat > m.Viewport.MaxLat || m.Viewport.MinLon > m.Viewport.MaxLon {
					_ = writeJSON(map[string]string{"error": "viewport min edges must not exceed max edges"})
					continue
				}
				stateMu.Lock()
				lastViewport = m.Viewport
				if m.Filter != nil {
					lastFilter = *m.Filter
				} else {
					lastFilter = domain.AttributeFilter{}
				}
				stateMu.Unlock()
				debouncer.Trigger(pushVisibleSet)

			case "subscribe", "unsubscribe":
				if deps.NATS == nil {
					_ = writeJSON(map[string]string{"error": "event relay not available"})
					continue
				}

				var subject string
				switch m.Channel {
				case "dataset":
					subject = "forest.dataset.>"
				case "reports":
					subject = "forest.report.>"
				case "broadcast", "":
					subject = "forest.updates.broadcast"
				default:
					_ = writeJSON(map[string]string{"error": "unknown channel: " + m.Channel})
					continue
				}

				if m.Action == "subscribe" {
					if _, exists := subs[subject]; exists {
						_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
						continue
					}
					s, err := deps.NATS.Subscribe(subject, func(msg *nats.Msg) {
						_ = writeJSON(json.RawMessage(msg.Data))
					})
					if err != nil {
						_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
						continue
					}
					subs[subject] = s
					_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})
					continue
				}

				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		// Cleanup
		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		log.Printf("ws client disconnected: %s", remoteAddr)
	}
}
