// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/worldgate/internal/protocol"
	"github.com/holomush/worldgate/internal/relay"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// DefaultQueueSize is the outbound frame buffer of a link.
const DefaultQueueSize = 256

// Link is one WebSocket connection. All writes go through a single writer
// goroutine fed by a bounded queue.
type Link struct {
	id    string
	world int
	conn  *websocket.Conn
	out   chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

var _ relay.Link = (*Link)(nil)

func newLink(conn *websocket.Conn, world, queueSize int) *Link {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Link{
		id:    ulid.Make().String(),
		world: world,
		conn:  conn,
		out:   make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
}

// ID returns the link id.
func (l *Link) ID() string {
	return l.id
}

// Send queues an event envelope without blocking. It fails with
// relay.ErrLinkBusy when the queue is full.
func (l *Link) Send(env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return oops.Code("LINK_ENCODE_FAILED").With("handler", env.Handler).Wrap(err)
	}

	select {
	case <-l.done:
		return relay.ErrLinkClosed
	default:
	}
	select {
	case l.out <- data:
		return nil
	case <-l.done:
		return relay.ErrLinkClosed
	default:
		return relay.ErrLinkBusy
	}
}

// reply queues a response, waiting for room until ctx is done.
func (l *Link) reply(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return oops.Code("LINK_ENCODE_FAILED").Wrap(err)
	}
	select {
	case l.out <- data:
		return nil
	case <-l.done:
		return relay.ErrLinkClosed
	case <-ctx.Done():
		return oops.Code("LINK_REPLY_TIMEOUT").Wrap(ctx.Err())
	}
}

// Close stops the writer and closes the connection. It is safe to call
// more than once.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.conn.Close()
	})
	return err //nolint:wrapcheck // close error needs no context
}

// writeLoop drains the queue until the link closes.
func (l *Link) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case data := <-l.out:
			if err := l.write(websocket.TextMessage, data); err != nil {
				slog.Debug("link write failed", "link_id", l.id, "world_id", l.world, "error", err)
				_ = l.Close()
				return
			}
		case <-ticker.C:
			if err := l.write(websocket.PingMessage, nil); err != nil {
				slog.Debug("link ping failed", "link_id", l.id, "world_id", l.world, "error", err)
				_ = l.Close()
				return
			}
		}
	}
}

func (l *Link) write(messageType int, data []byte) error {
	if err := l.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err //nolint:wrapcheck // logged by the caller
	}
	return l.conn.WriteMessage(messageType, data) //nolint:wrapcheck // logged by the caller
}

// readLoop calls handle for every text frame until the connection fails.
func (l *Link) readLoop(handle func(frame []byte)) error {
	l.conn.SetReadLimit(maxMessageSize)
	_ = l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := l.conn.ReadMessage()
		if err != nil {
			return err //nolint:wrapcheck // connection end is reported as-is
		}
		if messageType != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}
