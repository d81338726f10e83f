/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exports the stack engine's RX/TX counters as
// Prometheus collectors, served over a dedicated registry the way
// sptp's PrometheusExporter serves its own scrape of client counters.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Collector implements stack.Metrics against a private Prometheus
// registry. cmd/meshd's serve command constructs one and wires it into
// stack.Engine only when a metrics address is configured; otherwise the
// stack engine runs with a nil Metrics.
type Collector struct {
	registry *prometheus.Registry

	admitted *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	sent     prometheus.Counter
	acked    prometheus.Counter
	retried  prometheus.Counter
	failed   prometheus.Counter
}

// New constructs a Collector with a fresh registry and registers all
// counters against it.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshcore_frames_admitted_total",
			Help: "Frames that passed admission and were routed.",
		}, nil),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshcore_frames_dropped_total",
			Help: "Frames dropped before reaching a role adapter, by reason.",
		}, []string{"reason"}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshcore_tx_sent_total",
			Help: "TxItems handed to the radio successfully.",
		}),
		acked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshcore_tx_acked_total",
			Help: "Reliable sends that observed a matching reply.",
		}),
		retried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshcore_tx_retried_total",
			Help: "Reliable send attempts that were backed off and retried.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshcore_tx_failed_total",
			Help: "Reliable sends that exhausted their retry budget.",
		}),
	}
	c.registry.MustRegister(c.admitted, c.dropped, c.sent, c.acked, c.retried, c.failed)
	return c
}

// IncAdmitted implements stack.Metrics.
func (c *Collector) IncAdmitted() { c.admitted.WithLabelValues().Inc() }

// IncDropped implements stack.Metrics.
func (c *Collector) IncDropped(reason string) { c.dropped.WithLabelValues(reason).Inc() }

// IncSent implements stack.Metrics.
func (c *Collector) IncSent() { c.sent.Inc() }

// IncAcked implements stack.Metrics.
func (c *Collector) IncAcked() { c.acked.Inc() }

// IncRetried implements stack.Metrics.
func (c *Collector) IncRetried() { c.retried.Inc() }

// IncFailed implements stack.Metrics.
func (c *Collector) IncFailed() { c.failed.Inc() }

// Serve blocks forever, serving the registry's metrics on addr at
// /metrics. Run it in its own goroutine.
func (c *Collector) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	log.WithField("addr", addr).Info("metrics: serving prometheus registry")
	return http.ListenAndServe(addr, mux)
}

// Addr formats a ":port"-style listen address from a bare port number,
// matching the teacher's monitoringport flag convention.
func Addr(port int) string {
	return fmt.Sprintf(":%d", port)
}
