// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Command ember-node runs one substrate peer: it loads configuration,
// brings up the explicit Core context (internal/core.Node), accepts
// inbound peer connections over websocket, dials any configured bootstrap
// peers, and serves until an interrupt or terminate signal arrives
// (spec.md §5 "main dispatch loop", §9 "Replace with an explicit Core
// context").
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/publiuspseudis/ember/config"
	"github.com/publiuspseudis/ember/internal/core"
	"github.com/publiuspseudis/ember/log"
)

var (
	handle     = flag.String("handle", "", "handle this node claims or already holds (required)")
	dataDir    = flag.String("data-dir", "./data", "directory for the embedded key/value store")
	listenAddr = flag.String("listen", ":7890", "address to accept inbound peer websocket connections on")
	configPath = flag.String("config", "", "optional YAML file of config.Parameters overriding the defaults")
	bootstrap  = flagList("bootstrap", "peerID=ws://host:port pair to dial at startup; repeatable")
	dev        = flag.Bool("dev", false, "use a human-readable development logger instead of JSON production output")
)

// stringList accumulates repeated occurrences of a flag.
type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func flagList(name, usage string) *stringList {
	var l stringList
	flag.Var(&l, name, usage)
	return &l
}

func main() {
	flag.Parse()
	if *handle == "" {
		fmt.Fprintln(os.Stderr, "ember-node: -handle is required")
		os.Exit(1)
	}

	logger := log.NewProduction()
	if *dev {
		logger = log.NewDevelopment()
	}

	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ember-node: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node, err := core.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ember-node: constructing node: %v\n", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", node.MetricsHandler())
	mux.HandleFunc("/peer/", func(w http.ResponseWriter, r *http.Request) {
		peerID := strings.TrimPrefix(r.URL.Path, "/peer/")
		if peerID == "" {
			http.Error(w, "missing peer id", http.StatusBadRequest)
			return
		}
		if err := node.ServeWS(w, r, peerID); err != nil {
			logger.Warn("accepting peer connection failed", zap.Error(err))
		}
	})
	srv := &http.Server{Addr: *listenAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited", zap.Error(err))
		}
	}()

	for peerID, url := range cfg.Bootstrap {
		if err := node.Dial(ctx, peerID, url); err != nil {
			logger.Warn("dialing bootstrap peer failed", zap.Error(err))
		}
	}

	node.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	cancel()
	node.Stop()
}

// buildConfig merges the YAML-loaded config.Parameters (or its defaults)
// with the flags that govern this particular process instance into an
// internal/core.Config.
func buildConfig() (core.Config, error) {
	params := config.DefaultParams()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return core.Config{}, err
		}
		params = loaded
	}

	boot := make(map[string]string, len(*bootstrap))
	for _, entry := range *bootstrap {
		peerID, url, ok := strings.Cut(entry, "=")
		if !ok {
			return core.Config{}, fmt.Errorf("invalid -bootstrap entry %q, want peerID=url", entry)
		}
		boot[peerID] = url
	}

	return core.Config{
		Handle:                        *handle,
		DataDir:                       *dataDir,
		ListenAddr:                    *listenAddr,
		Bootstrap:                     boot,
		MaxPostSize:                   params.MaxPostSize,
		TrustThreshold:                params.TrustThreshold,
		AttestationTimeout:            params.AttestationTimeout,
		IdentityConfirmationThreshold: params.IdentityConfirmationThreshold,
		ActiveViewSize:                params.ActiveView,
		PassiveViewSize:               params.PassiveView,
		BlobCapBytes:                  params.BlobCapBytes,
		RequestTimeout:                10 * time.Second,
	}, nil
}
