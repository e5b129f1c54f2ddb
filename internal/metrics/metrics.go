// Package metrics exposes Prometheus instrumentation for the
// orchestrator. Collectors are registered on the default registry; the
// embedding application serves them however it serves its own.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketroute_provider_requests_total",
		Help: "Provider invocations by provider, capability and outcome.",
	}, []string{"provider", "capability", "outcome"})

	providerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketroute_provider_request_duration_seconds",
		Help:    "Provider invocation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "capability"})

	cacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketroute_cache_events_total",
		Help: "Cache lookups by provider, capability and result.",
	}, []string{"provider", "capability", "result"})

	quotaDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketroute_quota_denials_total",
		Help: "Calls denied by the quota middleware.",
	}, []string{"provider"})

	blacklistTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketroute_blacklist_trips_total",
		Help: "Times a provider was placed on the temporary blacklist.",
	}, []string{"provider"})

	blacklistRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketroute_blacklist_rejections_total",
		Help: "Calls rejected because the provider was blacklisted.",
	}, []string{"provider"})

	streamUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketroute_stream_updates_forwarded_total",
		Help: "Streaming updates forwarded to subscribers.",
	}, []string{"provider"})

	streamDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketroute_stream_updates_dropped_total",
		Help: "Streaming updates dropped before delivery, by reason.",
	}, []string{"provider", "reason"})

	streamFailovers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketroute_stream_failovers_total",
		Help: "Symbol-group migrations from one provider to the next.",
	}, []string{"from", "to"})

	publishedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketroute_published_messages_total",
		Help: "Updates published to the message bus, by subject and outcome.",
	}, []string{"subject", "outcome"})

	publishLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketroute_publish_duration_seconds",
		Help:    "Message bus publish latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"subject"})
)

func IncProviderRequest(provider, capability, outcome string) {
	providerRequests.WithLabelValues(provider, capability, outcome).Inc()
}

func ObserveProviderDuration(provider, capability string, d time.Duration) {
	providerDuration.WithLabelValues(provider, capability).Observe(d.Seconds())
}

func IncCacheEvent(provider, capability, result string) {
	cacheEvents.WithLabelValues(provider, capability, result).Inc()
}

func IncQuotaDenial(provider string) {
	quotaDenials.WithLabelValues(provider).Inc()
}

func IncBlacklistTrip(provider string) {
	blacklistTrips.WithLabelValues(provider).Inc()
}

func IncBlacklistRejection(provider string) {
	blacklistRejections.WithLabelValues(provider).Inc()
}

func IncStreamUpdate(provider string) {
	streamUpdates.WithLabelValues(provider).Inc()
}

func IncStreamDropped(provider, reason string) {
	streamDropped.WithLabelValues(provider, reason).Inc()
}

func IncStreamFailover(from, to string) {
	streamFailovers.WithLabelValues(from, to).Inc()
}

func IncPublishedMessage(subject, outcome string) {
	publishedMessages.WithLabelValues(subject, outcome).Inc()
}

func ObservePublishDuration(subject string, start time.Time) {
	publishLatency.WithLabelValues(subject).Observe(time.Since(start).Seconds())
}
