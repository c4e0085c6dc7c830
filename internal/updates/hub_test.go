package updates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/gorilla/websocket"
)

// stackChecker allows reads on a fixed set of stack ids.
type stackChecker map[string]bool

func (c stackChecker) Check(ctx context.Context, user *domain.User, target domain.ResourceTarget, required domain.PermissionLevel) error {
	if c[target.ID] {
		return nil
	}
	return domain.ErrUnauthorized
}

func update(id, stackID string) *domain.Update {
	return &domain.Update{
		ID:     id,
		Target: domain.ResourceTarget{Type: domain.ResourceTypeStack, ID: stackID},
		Status: domain.UpdateStatusInProgress,
	}
}

func receive(t *testing.T, ch <-chan *domain.Update) *domain.Update {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for update")
		return nil
	}
}

func TestSubscribeFiltersByPermission(t *testing.T) {
	hub := NewHub(stackChecker{"s1": true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := hub.Subscribe(ctx, &domain.User{Username: "alice"})
	hub.Publish(update("hidden", "s2"))
	hub.Publish(update("visible", "s1"))

	if got := receive(t, ch); got.ID != "visible" {
		t.Errorf("Expected visible update, got %s", got.ID)
	}
}

func TestPublishSendsSnapshot(t *testing.T) {
	hub := NewHub(stackChecker{"s1": true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := hub.Subscribe(ctx, &domain.User{Username: "alice"})
	u := update("u1", "s1")
	hub.Publish(u)
	u.PushLog(domain.SimpleLog("Later", "after publish"))

	if got := receive(t, ch); len(got.Logs) != 0 {
		t.Errorf("Expected published copy to be unaffected, got %d logs", len(got.Logs))
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	hub := NewHub(stackChecker{"s1": true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := hub.Subscribe(ctx, &domain.User{Username: "slow"})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*4; i++ {
			hub.Publish(update("u", "s1"))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	// Drain until the hub closes the stream.
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("Expected slow subscriber stream to be closed")
		}
	}
}

func TestServeWS(t *testing.T) {
	hub := NewHub(stackChecker{"s1": true})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, &domain.User{Username: "alice"})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// The subscription is registered asynchronously after the upgrade.
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.Lock()
		n := len(hub.subs)
		hub.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish(update("u1", "s1"))

	var got domain.Update
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.ID != "u1" || got.Status != domain.UpdateStatusInProgress {
		t.Errorf("Unexpected update: %+v", got)
	}
}
