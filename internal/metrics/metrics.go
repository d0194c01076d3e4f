package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var SubmissionsEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "anonboard_submissions_evaluated",
	Help: "Submissions evaluated by the guard, by result kind",
}, []string{"result"})

var PreviewFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "anonboard_preview_fetches",
	Help: "Link preview attempts, by outcome",
}, []string{"outcome"})

var PreviewFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "anonboard_preview_fetch_duration_sec",
	Help: "Duration of link preview fetches including redirect hops",
})

var PreviewCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "anonboard_preview_cache_hits",
	Help: "Link previews served from cache",
})

var ClassifierConfigLoads = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "anonboard_classifier_config_loads",
	Help: "Classifier ruleset loads, by source (store or static)",
}, []string{"source"})

var ScanOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "anonboard_moderation_scan_posts",
	Help: "Posts processed by the moderation sweep, by outcome",
}, []string{"outcome"})

var ModerationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "anonboard_moderation_decisions",
	Help: "Admin moderation decisions, by action",
}, []string{"action"})

var ReportsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "anonboard_reports_created",
	Help: "User reports accepted, by category",
}, []string{"category"})

var AdminAuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "anonboard_admin_auth_failures",
	Help: "Rejected admin requests, by reason",
}, []string{"reason"})
