// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/publiuspseudis/ember/log"
	"github.com/publiuspseudis/ember/metrics"
	"github.com/publiuspseudis/ember/utils/wrappers"
)

// nodeMetrics is the ambient observability surface every component feeds:
// spec.md's Non-goals scope out a dedicated metrics UI, not metrics
// themselves, so counters are still kept the way the rest of this module's
// ambient stack is (structured logging, typed config).
type nodeMetrics struct {
	registry prometheus.Registerer
	gatherer prometheus.Gatherer

	postsComposed metrics.Averager
	postsReceived metrics.Averager
	postsRejected metrics.Averager
	dmsSent       metrics.Averager
	gcSweeps      metrics.Averager
}

// newNodeMetrics builds a private prometheus registry per Node, rather than
// registering against prometheus.DefaultRegisterer, so constructing more
// than one Node in the same process (as the test suite does) never trips
// prometheus's duplicate-collector-registration panic.
func newNodeMetrics(logger log.Logger) *nodeMetrics {
	reg := prometheus.NewRegistry()
	var errs wrappers.Errs
	nm := &nodeMetrics{
		registry:      reg,
		gatherer:      reg,
		postsComposed: metrics.NewAveragerWithErrs("ember_posts_composed_total", "posts composed by this node", reg, &errs),
		postsReceived: metrics.NewAveragerWithErrs("ember_posts_received_total", "posts accepted from peers", reg, &errs),
		postsRejected: metrics.NewAveragerWithErrs("ember_posts_rejected_total", "posts rejected on reception", reg, &errs),
		dmsSent:       metrics.NewAveragerWithErrs("ember_dms_sent_total", "direct messages sent", reg, &errs),
		gcSweeps:      metrics.NewAveragerWithErrs("ember_gc_sweeps_total", "carriage GC sweeps run", reg, &errs),
	}
	if errs.Errored() && logger != nil {
		logger.Warn("registering node metrics", zap.Error(errs.Err()))
	}
	return nm
}

// MetricsHandler exposes this node's metrics for a net/http.ServeMux, wired in by
// cmd/ember-node.
func (n *Node) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(n.metrics.gatherer, promhttp.HandlerOpts{})
}
