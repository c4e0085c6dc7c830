// Package updates streams Update records to websocket subscribers.
package updates

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	subscriberBuffer = 64
	writeTimeout     = 15 * time.Second
	pongWait         = 70 * time.Second
	pingPeriod       = 30 * time.Second
)

// Checker decides whether a user may see updates on a target.
type Checker interface {
	Check(ctx context.Context, user *domain.User, target domain.ResourceTarget, required domain.PermissionLevel) error
}

type subscriber struct {
	user  *domain.User
	inbox chan *domain.Update
}

// Hub fans published updates out to subscribers. Publish never blocks:
// a subscriber whose buffer is full is dropped.
type Hub struct {
	checker  Checker
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewHub creates a hub that filters deliveries through checker.
func NewHub(checker Checker) *Hub {
	return &Hub{
		checker: checker,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// Publish sends a copy of update to every subscriber.
func (h *Hub) Publish(update *domain.Update) {
	if h == nil {
		return
	}
	snapshot := update.Clone()

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.inbox <- snapshot:
		default:
			slog.Warn("dropping slow update subscriber", "user", sub.user.Username)
			delete(h.subs, sub)
			close(sub.inbox)
		}
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.inbox)
	}
}

// Subscribe returns the updates user may read until ctx is done or the
// subscriber is dropped. The returned channel is closed on exit.
func (h *Hub) Subscribe(ctx context.Context, user *domain.User) <-chan *domain.Update {
	sub := &subscriber{user: user, inbox: make(chan *domain.Update, subscriberBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	out := make(chan *domain.Update)
	go func() {
		defer close(out)
		defer h.remove(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-sub.inbox:
				if !ok {
					return
				}
				if err := h.checker.Check(ctx, user, update.Target, domain.PermissionRead); err != nil {
					continue
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// ServeWS upgrades the request and streams updates as JSON text frames.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, user *domain.User) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only serve control frames; any read error ends the stream.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	updates := h.Subscribe(ctx, user)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
