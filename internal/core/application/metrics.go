package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bitswap_orderbook_ingest_total",
		Help: "Messages ingested by the order book by outcome",
	}, []string{"result"})

	orderbookSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bitswap_orderbook_size",
		Help: "Intents currently held in the order book",
	})

	swapTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bitswap_swap_transitions_total",
		Help: "Swap state transitions by role and target status",
	}, []string{"role", "status"})

	executionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bitswap_program_executions_total",
		Help: "Program executions submitted to the wallet by program and outcome",
	}, []string{"program", "outcome"})

	executionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bitswap_program_execution_duration_seconds",
		Help:    "Time spent waiting for the wallet to execute a program",
		Buckets: prometheus.DefBuckets,
	}, []string{"program"})
)
