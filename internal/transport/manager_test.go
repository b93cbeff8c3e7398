// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDialSendAndDispatch(t *testing.T) {
	received := make(chan []byte, 1)
	server := NewManager(func(peer string, raw []byte) {
		received <- raw
	}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, server.Accept(w, r, "client-1"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := NewManager(func(string, []byte) {}, nil)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	require.NoError(t, client.Dial(context.Background(), "server", wsURL))

	require.Eventually(t, func() bool { return server.Connected("client-1") }, time.Second, 10*time.Millisecond)

	require.True(t, client.Send("server", []byte("hello")))

	select {
	case raw := <-received:
		require.Equal(t, "hello", string(raw))
	case <-time.After(time.Second):
		t.Fatal("server never received frame")
	}

	client.CloseAll()
	server.CloseAll()
}

func TestSendToUnknownPeerReturnsFalse(t *testing.T) {
	m := NewManager(nil, nil)
	require.False(t, m.Send("nobody", []byte("x")))
}

func TestCloseRemovesPeer(t *testing.T) {
	received := make(chan []byte, 1)
	server := NewManager(func(_ string, raw []byte) { received <- raw }, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, server.Accept(w, r, "client-1"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := NewManager(func(string, []byte) {}, nil)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	require.NoError(t, client.Dial(context.Background(), "server", wsURL))
	require.Eventually(t, func() bool { return server.Connected("client-1") }, time.Second, 10*time.Millisecond)

	client.Close("server")
	require.False(t, client.Connected("server"))
}
