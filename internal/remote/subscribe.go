package remote

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/stillpointapp/stillpoint/internal/orchestrator"
)

// subscription is a live WebSocket task feed.
type subscription struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Unsubscribe implements orchestrator.Subscription.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "unsubscribed")
		<-s.done
	})
}

// SubscribeToTasks implements orchestrator.Collaborator. It opens a
// WebSocket to the task feed endpoint and delivers decoded change events to
// onChange until the subscription is cancelled, the context ends, or the
// connection drops.
func (c *Client) SubscribeToTasks(ctx context.Context, userID string, onChange func(orchestrator.TaskChange)) (orchestrator.Subscription, error) {
	wsURL := wsBaseURL(c.baseURL) + fmt.Sprintf("/users/%s/tasks/feed", userID)

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open task feed: %v", ErrUnavailable, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		for {
			var change orchestrator.TaskChange
			if err := wsjson.Read(subCtx, conn, &change); err != nil {
				if subCtx.Err() == nil {
					c.logger.Printf("Task feed closed: %v", err)
				}
				return
			}
			onChange(change)
		}
	}()

	return sub, nil
}

// wsBaseURL rewrites an http(s) base URL to its ws(s) equivalent.
func wsBaseURL(base string) string {
	if strings.HasPrefix(base, "https://") {
		return "wss://" + strings.TrimPrefix(base, "https://")
	}
	if strings.HasPrefix(base, "http://") {
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
