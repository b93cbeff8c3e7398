// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"context"

	"go.uber.org/zap"

	"github.com/publiuspseudis/ember/log"
)

// PeerID identifies the remote end a message arrived from.
type PeerID string

// Handler processes one decoded wire message body. The concrete Go type
// behind raw is the payload struct matching the Type the handler was
// registered for.
type Handler func(ctx context.Context, from PeerID, raw []byte) error

// Dispatcher is the type-keyed handler table (spec.md §9 "Polymorphism over
// wire messages ... decoding is a dispatch table to typed handlers; unknown
// types are dropped with a debug log"), adapted from the teacher's
// networking/router chain-routing pattern to a JSON type discriminator
// instead of a byte opcode.
type Dispatcher struct {
	handlers map[Type]Handler
	logger   log.Logger
}

// NewDispatcher constructs an empty Dispatcher.
func NewDispatcher(logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &Dispatcher{handlers: make(map[Type]Handler), logger: logger}
}

// Register binds a handler to a message type, overwriting any prior
// registration.
func (d *Dispatcher) Register(t Type, h Handler) {
	d.handlers[t] = h
}

// Dispatch peeks the message's type and invokes the matching handler. An
// unrecognized type is dropped with a debug log, never an error, matching
// spec.md's explicit "unknown types are dropped" policy.
func (d *Dispatcher) Dispatch(ctx context.Context, from PeerID, raw []byte) error {
	t, err := PeekType(raw)
	if err != nil {
		d.logger.Debug("dropping malformed wire message", zap.String("from", string(from)), zap.Error(err))
		return nil
	}
	h, ok := d.handlers[t]
	if !ok {
		d.logger.Debug("dropping unrecognized wire message type", zap.String("type", string(t)), zap.String("from", string(from)))
		return nil
	}
	return h(ctx, from, raw)
}
