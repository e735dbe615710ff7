package fieldbus

import (
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pollTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldbus_poll_cycles_total",
		Help: "Poll cycles attempted per device.",
	}, []string{"device"})

	pollErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldbus_poll_errors_total",
		Help: "Poll cycles that failed per device.",
	}, []string{"device"})

	pollDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldbus_poll_duration_seconds",
		Help:    "Wall time of one poll cycle per device.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"device"})
)

func init() {
	prometheus.MustRegister(pollTotal, pollErrors, pollDuration)
}

// EnableMetrics enables metrics on the mux.
func EnableMetrics(router *mux.Router) {
	router.Path("/metrics").Handler(promhttp.Handler())
}

// EnableDebug enables debug endpoints.
func EnableDebug(router *mux.Router) {
	router.HandleFunc("/debug/pprof/", pprof.Index)
	router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	router.HandleFunc("/debug/pprof/profile", pprof.Profile)
	router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	router.HandleFunc("/debug/pprof/trace", pprof.Trace)
	router.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	router.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	router.Handle("/debug/pprof/block", pprof.Handler("block"))
	router.Handle("/debug/pprof/mutex", pprof.Handler("mutex"))
	router.Handle("/debug/pprof/allocs", pprof.Handler("allocs"))
}

// EnableAll enables metrics and debug endpoints.
func EnableAll(router *mux.Router) {
	EnableMetrics(router)
	EnableDebug(router)
}
