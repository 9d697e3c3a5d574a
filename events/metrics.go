package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "contentmod_events_published_total",
	Help: "Total number of moderation events published",
}, []string{"type"})

var eventsPublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "contentmod_events_publish_errors_total",
	Help: "Total number of moderation events which could not be published",
}, []string{"type"})
