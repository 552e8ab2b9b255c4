package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	exchangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_exchanges_total",
		Help: "Narrative exchanges by outcome.",
	}, []string{"outcome"})

	exchangeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_exchange_duration_seconds",
		Help:    "Duration of completed narrative exchanges.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	})

	toolActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_tool_actions_total",
		Help: "Tool actions by kind and outcome.",
	}, []string{"kind", "outcome"})

	rollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_rolls_total",
		Help: "Resolved rolls by outcome.",
	}, []string{"outcome"})

	roundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_rounds_total",
		Help: "Turn rounds started and ended.",
	}, []string{"event"})

	imagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_illustrations_total",
		Help: "Illustrations recorded by result.",
	}, []string{"result"})

	pausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_pauses_total",
		Help: "Sessions paused after a provider failure.",
	})

	deathsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_character_deaths_total",
		Help: "Characters that died.",
	})
)
