package automod

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("automod")

var recordProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "automod_record_duration_sec",
	Help: "Total duration of real-time record moderation",
})

var recordOutcomeCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_record_outcomes",
	Help: "Number of records moderated in real time, by outcome",
}, []string{"outcome"})

var recordErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_record_errors",
	Help: "Number of records which failed real-time moderation",
}, []string{"provider"})
