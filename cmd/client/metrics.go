package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// refreshCoalescedTotal counts requests that piggybacked on a refresh already
// in flight instead of starting their own.
var refreshCoalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "wisata",
	Subsystem: "client",
	Name:      "refresh_coalesced_total",
	Help:      "Requests that waited on an in-flight token refresh.",
})
