package domain

import "time"

// MetricsSnapshot is an on-demand aggregation over a time window.
type MetricsSnapshot struct {
	PeriodStart  time.Time                  `json:"period_start"`
	PeriodEnd    time.Time                  `json:"period_end"`
	TotalSent    int64                      `json:"total_sent"`
	Delivered    int64                      `json:"delivered"`
	Failed       int64                      `json:"failed"`
	RateLimited  int64                      `json:"rate_limited"`
	Expired      int64                      `json:"expired"`
	DeliveryRate float64                    `json:"delivery_rate"` // delivered / sent
	AvgLatency   time.Duration              `json:"avg_latency"`
	ByChannel    map[Channel]int64          `json:"by_channel"`
	ByType       map[NotificationType]int64 `json:"by_type"`
}

// RealTimeStats is the live counter view, recomputed from running totals.
type RealTimeStats struct {
	TotalSent        int64                      `json:"total_sent"`
	Delivered        int64                      `json:"delivered"`
	Failed           int64                      `json:"failed"`
	RateLimited      int64                      `json:"rate_limited"`
	Expired          int64                      `json:"expired"`
	DeliveryRate     float64                    `json:"delivery_rate"`
	AvgLatency       time.Duration              `json:"avg_latency"`
	ByChannel        map[Channel]int64          `json:"by_channel"`
	ByType           map[NotificationType]int64 `json:"by_type"`
	LastAggregatedAt time.Time                  `json:"last_aggregated_at"`
}
