package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "tillpoint_"

const (
	ResultSuccess = "success"
	ResultError   = "error"

	ClearModeStart  = "start"
	ClearModeFinish = "finish"
	ClearModeDirect = "direct"
)

var (
	registerOnce sync.Once

	httpLatency *prometheus.HistogramVec

	tillClears    *prometheus.CounterVec
	itemsCounted  *prometheus.CounterVec
	itemTransfers *prometheus.CounterVec
	depositsMade  prometheus.Counter
)

// Init registers the service metrics with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency by method and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		)
		tillClears = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "till_clears_total",
				Help: "Till clear operations by mode and result",
			},
			[]string{"mode", "result"},
		)
		itemsCounted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "balance_items_counted_total",
				Help: "Items linked into till balances by kind",
			},
			[]string{"kind"},
		)
		itemTransfers = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "item_transfers_total",
				Help: "Till-to-till item transfers by result",
			},
			[]string{"result"},
		)
		depositsMade = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "bank_deposits_total",
				Help: "Bank deposits finalized",
			},
		)

		prometheus.MustRegister(
			httpLatency, tillClears, itemsCounted, itemTransfers, depositsMade,
		)
	})
}

func ObserveHTTPRequest(method string, status int, elapsed time.Duration) {
	if httpLatency == nil {
		return
	}
	httpLatency.WithLabelValues(method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func IncClear(mode, result string) {
	if tillClears == nil {
		return
	}
	tillClears.WithLabelValues(mode, result).Inc()
}

func IncItemCounted(kind string) {
	if itemsCounted == nil {
		return
	}
	itemsCounted.WithLabelValues(kind).Inc()
}

func IncTransfer(result string) {
	if itemTransfers == nil {
		return
	}
	itemTransfers.WithLabelValues(result).Inc()
}

func IncDeposit() {
	if depositsMade == nil {
		return
	}
	depositsMade.Inc()
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
