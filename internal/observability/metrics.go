package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marketplace_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OrdersPlaced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_orders_placed_total",
			Help: "Orders committed",
		},
	)

	TicketsSold = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_tickets_sold_total",
			Help: "Tickets created by committed orders",
		},
	)

	OrderRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_order_rejections_total",
			Help: "Order placements that failed, by error kind",
		},
		[]string{"kind"},
	)

	OrderRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_order_retries_total",
			Help: "Order placements restarted after a serialization failure",
		},
	)

	ClientTotalMismatch = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_client_total_mismatch_total",
			Help: "Orders whose client supplied total differed from the computed one",
		},
	)

	CatalogCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_catalog_cache_total",
			Help: "Catalog cache lookups by result",
		},
		[]string{"result"},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketplace_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)

	AuditRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_audit_records_total",
			Help: "Audit messages handled, by outcome",
		},
		[]string{"outcome"},
	)
)
