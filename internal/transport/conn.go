// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport owns the physical peer connections and the per-peer
// outbound queues that sit underneath internal/wire (spec.md §5
// "Shared-resource policy ... Peer connections are owned by the network
// driver; the main loop sends via a per-peer outbound queue").
package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/publiuspseudis/ember/log"
)

// OutboundQueueSize bounds how many unsent frames a peer connection holds
// before new sends are dropped (a stalled peer must not back-pressure the
// rest of the node).
const OutboundQueueSize = 256

// WriteTimeout bounds a single frame write.
const WriteTimeout = 10 * time.Second

// PongWait is how long a connection may go without a pong before it is
// considered dead.
const PongWait = 60 * time.Second

// PingInterval is how often the write pump sends a keepalive ping; must be
// comfortably under PongWait.
const PingInterval = (PongWait * 9) / 10

// Dispatch receives one inbound frame from a peer.
type Dispatch func(peer string, raw []byte)

// conn wires one physical websocket connection to a bounded outbound queue
// and a background read/write pump pair.
type conn struct {
	peer   string
	ws     *websocket.Conn
	out    chan []byte
	closed chan struct{}
	once   sync.Once
	logger log.Logger
}

func newConn(peer string, ws *websocket.Conn, logger log.Logger) *conn {
	return &conn{
		peer:   peer,
		ws:     ws,
		out:    make(chan []byte, OutboundQueueSize),
		closed: make(chan struct{}),
		logger: logger,
	}
}

// enqueue offers a frame to the outbound queue without blocking the
// caller; a full queue means the peer is not draining fast enough and the
// frame is dropped.
func (c *conn) enqueue(payload []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.out <- payload:
		return true
	default:
		c.logger.Warn("dropping frame, outbound queue full", zap.String("peer", c.peer))
		return false
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

func (c *conn) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				c.logger.Debug("peer write failed", zap.String("peer", c.peer), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *conn) readPump(dispatch Dispatch) {
	defer c.close()

	c.ws.SetReadLimit(0) // frame size is bounded upstream by wire envelope/content limits
	_ = c.ws.SetReadDeadline(time.Now().Add(PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Debug("peer read failed", zap.String("peer", c.peer), zap.Error(err))
			return
		}
		dispatch(c.peer, raw)
	}
}
