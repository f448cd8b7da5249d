package authapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wisata",
		Subsystem: "auth",
		Name:      "login_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})

	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wisata",
		Subsystem: "auth",
		Name:      "refresh_total",
		Help:      "Refresh rotations by outcome.",
	}, []string{"outcome"})
)
