package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"earnwatch/internal/domain"
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "earnwatch_cycles_total",
		Help: "Completed polling cycles.",
	})

	listingsNewTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "earnwatch_listings_new_total",
		Help: "Listings seen for the first time.",
	})

	notificationsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "earnwatch_notifications_sent_total",
		Help: "Listing notifications confirmed sent.",
	})

	listingsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "earnwatch_listings_skipped_total",
		Help: "Listings suppressed by the region filter.",
	})
)

func observeCycle(result domain.CycleResult) {
	cyclesTotal.Inc()
	listingsNewTotal.Add(float64(result.New))
	notificationsSentTotal.Add(float64(result.Notified))
	listingsSkippedTotal.Add(float64(result.Skipped))
}
