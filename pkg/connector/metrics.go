// Copyright 2024-2026 Aiku AI

package connector

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the adapter's Prometheus collectors.
type Metrics struct {
	Events          *prometheus.CounterVec
	Rejected        *prometheus.CounterVec
	Dispatched      prometheus.Counter
	DispatchErrors  prometheus.Counter
	DroppedSegments *prometheus.CounterVec
	ForwardPolicy   *prometheus.CounterVec
	APICalls        *prometheus.CounterVec
	Connections     prometheus.Gauge
	LivenessLost    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "napcat_adapter_events_total",
			Help: "Inbound gateway events by post type.",
		}, []string{"post_type"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "napcat_adapter_rejected_messages_total",
			Help: "Message events rejected before dispatch, by reason.",
		}, []string{"reason"}),
		Dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "napcat_adapter_dispatched_total",
			Help: "Envelopes handed to the dispatch sink.",
		}),
		DispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "napcat_adapter_dispatch_errors_total",
			Help: "Envelopes the dispatch sink failed to accept.",
		}),
		DroppedSegments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "napcat_adapter_dropped_segments_total",
			Help: "Content items dropped during conversion, by reason.",
		}, []string{"reason"}),
		ForwardPolicy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "napcat_adapter_forward_image_policy_total",
			Help: "Image policy applied to forward bundles.",
		}, []string{"policy"}),
		APICalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "napcat_adapter_api_calls_total",
			Help: "Gateway API calls by action and result.",
		}, []string{"action", "result"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "napcat_adapter_connections",
			Help: "Currently connected gateways.",
		}),
		LivenessLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "napcat_adapter_liveness_lost_total",
			Help: "Connections declared dead after missing heartbeats.",
		}),
	}
	reg.MustRegister(
		m.Events, m.Rejected, m.Dispatched, m.DispatchErrors, m.DroppedSegments,
		m.ForwardPolicy, m.APICalls, m.Connections, m.LivenessLost,
	)
	return m
}

// Label values for DroppedSegments.
const (
	dropImageFetch   = "image_fetch"
	dropMentionInfo  = "mention_lookup"
	dropForwardFetch = "forward_fetch"
	dropForwardEmpty = "forward_empty"
	dropDecode       = "decode"
)

// Label values for ForwardPolicy.
const (
	policyNone        = "none"
	policyResolve     = "resolve"
	policyPlaceholder = "placeholder"
)
