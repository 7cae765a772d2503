package domain

import "time"

// EdgeMeasurement records how long a market took to reprice after a live
// event was detected.
type EdgeMeasurement struct {
	EventID          string        `json:"event_id"`
	EventKind        LiveEventKind `json:"event_kind"`
	FixtureID        string        `json:"fixture_id"`
	TokenID          string        `json:"token_id"`
	Latency          time.Duration `json:"latency"`
	PriceAtDetection float64       `json:"price_at_detection"`
	PriceAfterMove   float64       `json:"price_after_move"`
	PriceDelta       float64       `json:"price_delta"`
	DetectedAt       time.Time     `json:"detected_at"`
	MovedAt          time.Time     `json:"moved_at"`
}

// EdgeStats summarizes the retained edge measurements. Latencies are zero
// while nothing has been measured.
type EdgeStats struct {
	Measured   int           `json:"measured"`
	Pending    int           `json:"pending"`
	Expired    int           `json:"expired"`
	AvgLatency time.Duration `json:"avg_latency"`
	P50Latency time.Duration `json:"p50_latency"`
	P95Latency time.Duration `json:"p95_latency"`
}

// EdgeReport is the edge-latency state shown in a strategy snapshot.
type EdgeReport struct {
	Stats        EdgeStats         `json:"stats"`
	Measurements []EdgeMeasurement `json:"measurements"`
}
