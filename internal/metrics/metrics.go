package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestDuration длительность HTTP запросов (секунды).
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	// PaymentsTotal денежные операции по виду и результату.
	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_payments_total",
			Help: "Total number of wallet and escrow operations",
		},
		[]string{"kind", "status"}, // kind: deposit, lock, release, refund, payout, credit
	)

	// InvoicesIssuedTotal выставленные счета по налоговому режиму.
	InvoicesIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_invoices_issued_total",
			Help: "Total number of invoices issued",
		},
		[]string{"regime"},
	)

	// WebhookEventsTotal входящие события Stripe.
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_webhook_events_total",
			Help: "Total number of payment provider webhook events",
		},
		[]string{"type", "result"}, // result: processed, duplicate, ignored, failed
	)
)

// RecordPayment учитывает денежную операцию.
func RecordPayment(kind string, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	PaymentsTotal.WithLabelValues(kind, status).Inc()
}

// RecordInvoiceIssued учитывает выставленный счёт.
func RecordInvoiceIssued(regime string) {
	InvoicesIssuedTotal.WithLabelValues(regime).Inc()
}

// RecordWebhookEvent учитывает обработку события вебхука.
func RecordWebhookEvent(eventType, result string) {
	WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

// GinMiddleware измеряет длительность запросов.
// В метку path попадает шаблон маршрута, а не фактический URL.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler отдаёт метрики в формате Prometheus.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
