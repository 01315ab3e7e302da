package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/huangang/cocode/internal/realtime"
	"github.com/huangang/cocode/pkg/logger"
)

// Channel is a websocket subscription to one project room.
type Channel struct {
	ProjectID string

	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  chan struct{}
	once    sync.Once
}

// Dial joins the project room on the server behind baseURL.
func Dial(ctx context.Context, baseURL, token, projectID string) (*Channel, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := url.Values{}
	q.Set("projectId", projectID)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer func() { _ = resp.Body.Close() }()
			return nil, fmt.Errorf("join project %s: %w (%s)", projectID, err, http.StatusText(resp.StatusCode))
		}
		return nil, fmt.Errorf("join project %s: %w", projectID, err)
	}

	return &Channel{ProjectID: projectID, conn: conn, closed: make(chan struct{})}, nil
}

// Send publishes a human message to the room.
func (ch *Channel) Send(msg realtime.HumanMessage) error {
	frame, err := realtime.EncodeFrame(msg)
	if err != nil {
		return err
	}
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	_ = ch.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ch.conn.WriteMessage(websocket.TextMessage, frame)
}

// Listen delivers every received message to handle until ctx ends or the
// connection closes. A malformed AI payload is delivered together with its
// decode error; frames that are not project messages are skipped.
func (ch *Channel) Listen(ctx context.Context, handle func(realtime.ChatMessage, error)) error {
	go func() {
		select {
		case <-ctx.Done():
			_ = ch.Close()
		case <-ch.closed:
		}
	}()

	for {
		_, frame, err := ch.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		pm, err := realtime.DecodeFrame(frame)
		if err != nil {
			logger.Warn().Err(err).Str("project_id", ch.ProjectID).Msg("skipping unreadable frame")
			continue
		}
		msg, err := realtime.Decode(pm)
		handle(msg, err)
	}
}

// Close sends a close frame and releases the connection.
func (ch *Channel) Close() error {
	var err error
	ch.once.Do(func() {
		close(ch.closed)
		ch.writeMu.Lock()
		_ = ch.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		ch.writeMu.Unlock()
		err = ch.conn.Close()
	})
	return err
}
