package metrics

import (
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    jobsTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfassembler",
            Name:      "jobs_total",
            Help:      "Total assembly operations by tool and result",
        },
        []string{"tool", "result"},
    )

    jobDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "pdfassembler",
            Name:      "job_duration_seconds",
            Help:      "Duration of assembly operations by tool",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"tool"},
    )

    pagesAssembled = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfassembler",
            Name:      "pages_assembled_total",
            Help:      "Pages written into produced artifacts by tool",
        },
        []string{"tool"},
    )

    usageDenied = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfassembler",
            Name:      "usage_denied_total",
            Help:      "Operations refused by the usage gate by tool",
        },
        []string{"tool"},
    )

    oversizeInputs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfassembler",
            Name:      "oversize_inputs_total",
            Help:      "Inputs above the advisory size hint by kind (pdf, image)",
        },
        []string{"kind"},
    )

    artifactsPublished = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfassembler",
            Name:      "artifacts_published_total",
            Help:      "Artifacts published to a sink by sink and result",
        },
        []string{"sink", "result"},
    )
)

// Init registers collectors.
func Init() {
    prometheus.MustRegister(jobsTotal, jobDuration, pagesAssembled, usageDenied, oversizeInputs, artifactsPublished)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveJob(tool, result string, dur time.Duration) {
    jobsTotal.WithLabelValues(tool, result).Inc()
    jobDuration.WithLabelValues(tool).Observe(dur.Seconds())
}

func AddPages(tool string, n int)      { pagesAssembled.WithLabelValues(tool).Add(float64(n)) }
func IncDenied(tool string)            { usageDenied.WithLabelValues(tool).Inc() }
func IncOversize(kind string)          { oversizeInputs.WithLabelValues(kind).Inc() }

func IncPublished(sink string, ok bool) {
    artifactsPublished.WithLabelValues(sink, resultStr(ok)).Inc()
}

func resultStr(ok bool) string { if ok { return "success" }; return "error" }
