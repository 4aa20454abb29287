package obs

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the Prometheus collectors for sale settlement and the HTTP API.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SalesCommitted   *prometheus.CounterVec
	SaleFailures     *prometheus.CounterVec
	InvoiceConflicts prometheus.Counter
	ImportRows       *prometheus.CounterVec
	ReqTotal         *prometheus.CounterVec
	ReqDur           *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg (prometheus.DefaultRegisterer when
// nil). Collectors already registered under the same name are reused.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		SalesCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_committed_total",
			Help:      "Sales settled successfully, by payment method.",
		}, []string{"payment_method"}),
		SaleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_failures_total",
			Help:      "Sales rejected or rolled back, by reason.",
		}, []string{"reason"}),
		InvoiceConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_conflicts_total",
			Help:      "Invoice number collisions retried with a fresh suffix.",
		}),
		ImportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Bulk import rows by result.",
		}, []string{"result"}),
		ReqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"method", "route"}),
	}

	mustRegisterCollector(reg, m.SalesCommitted, func(c prometheus.Collector) {
		if v, ok := c.(*prometheus.CounterVec); ok {
			m.SalesCommitted = v
		}
	})
	mustRegisterCollector(reg, m.SaleFailures, func(c prometheus.Collector) {
		if v, ok := c.(*prometheus.CounterVec); ok {
			m.SaleFailures = v
		}
	})
	mustRegisterCollector(reg, m.InvoiceConflicts, func(c prometheus.Collector) {
		if v, ok := c.(prometheus.Counter); ok {
			m.InvoiceConflicts = v
		}
	})
	mustRegisterCollector(reg, m.ImportRows, func(c prometheus.Collector) {
		if v, ok := c.(*prometheus.CounterVec); ok {
			m.ImportRows = v
		}
	})
	mustRegisterCollector(reg, m.ReqTotal, func(c prometheus.Collector) {
		if v, ok := c.(*prometheus.CounterVec); ok {
			m.ReqTotal = v
		}
	})
	mustRegisterCollector(reg, m.ReqDur, func(c prometheus.Collector) {
		if v, ok := c.(*prometheus.HistogramVec); ok {
			m.ReqDur = v
		}
	})
	return m
}

func (m *Metrics) SaleCommitted(method string) {
	if m == nil {
		return
	}
	m.SalesCommitted.WithLabelValues(method).Inc()
}

// SaleFailed records a rejected sale. reason is one of validation,
// not_found, insufficient_stock, invoice_conflict or commit.
func (m *Metrics) SaleFailed(reason string) {
	if m == nil {
		return
	}
	m.SaleFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) InvoiceConflict() {
	if m == nil {
		return
	}
	m.InvoiceConflicts.Inc()
}

func (m *Metrics) ImportRow(result string) {
	if m == nil {
		return
	}
	m.ImportRows.WithLabelValues(result).Inc()
}

// Middleware counts requests and observes latency per route pattern.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		route := "unknown"
		if r := c.Route(); r != nil && r.Path != "" {
			route = utils.CopyString(r.Path)
		}
		// label values outlive the request; fasthttp reuses the method buffer
		method := utils.CopyString(c.Method())
		m.ReqTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		m.ReqDur.WithLabelValues(method, route).Observe(float64(time.Since(start)) / float64(time.Millisecond))
		return err
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
