package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the payment module.
type Metrics struct {
	IntentsCreated    prometheus.Counter
	IntentFailures    prometheus.Counter
	Confirmations     prometheus.Counter
	ConfirmReplays    prometheus.Counter
	DiscountedAmounts prometheus.Histogram
}

// New creates a new Metrics instance with all payment module metrics registered.
func New() *Metrics {
	return &Metrics{
		IntentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formalitys_payment_intents_created_total",
			Help: "Total number of payment intents created",
		}),
		IntentFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formalitys_payment_intent_failures_total",
			Help: "Total number of payment intent creations rejected or failed upstream",
		}),
		Confirmations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formalitys_payment_confirmations_total",
			Help: "Total number of payments confirmed",
		}),
		ConfirmReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formalitys_payment_confirm_replays_total",
			Help: "Total number of webhook confirmations replayed for an already-confirmed payment",
		}),
		DiscountedAmounts: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "formalitys_payment_final_amount_centimes",
			Help:    "Distribution of final charged amounts in centimes",
			Buckets: prometheus.ExponentialBuckets(10000, 2, 8),
		}),
	}
}
