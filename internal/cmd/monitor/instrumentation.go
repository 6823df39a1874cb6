package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plugsched",
		Subsystem: "tuya",
		Name:      "http_requests_total",
		Help:      "total number of http requests",
	},
		[]string{"code", "method"},
	)

	requestDuration = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "plugsched",
		Subsystem: "tuya",
		Name:      "http_request_duration_seconds",
		Help:      "duration of http requests",
	},
		[]string{"code", "method"},
	)
)

func instrumentedHTTPClient(counter *prometheus.CounterVec, obs prometheus.ObserverVec) *http.Client {
	rt := promhttp.InstrumentRoundTripperCounter(counter,
		promhttp.InstrumentRoundTripperDuration(obs,
			http.DefaultTransport,
		),
	)
	return &http.Client{Transport: rt, Timeout: 10 * time.Second}
}
