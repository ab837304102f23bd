package address

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	locationResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_location_resolutions_total",
			Help: "Device location resolutions by outcome",
		},
		[]string{"outcome"},
	)

	postalLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_postal_lookups_total",
			Help: "Postal code lookups by result",
		},
		[]string{"result"},
	)
)
