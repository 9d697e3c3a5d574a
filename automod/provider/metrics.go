package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var providerAPIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "contentmod_provider_api_duration_sec",
	Help: "Duration of moderation backend API calls",
}, []string{"provider"})

var providerAPICount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "contentmod_provider_api_count",
	Help: "Number of moderation backend API calls, by HTTP status code",
}, []string{"provider", "status"})

var localRuleHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "contentmod_local_rule_hits",
	Help: "Number of texts which triggered each local moderation signal",
}, []string{"signal"})
