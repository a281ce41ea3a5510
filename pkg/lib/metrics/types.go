package metrics

import (
	"context"
	"time"
)

// Point is one sample of a subject's metric.
type Point struct {
	SubjectID string
	Metric    string
	Value     float64
	Time      time.Time
}

// Table is a group of points as returned by the time-series store.
type Table struct {
	Points []Point
}

// Filter selects points of one subject and metric.
type Filter struct {
	SubjectID string
	Metric    string
	// Start is the inclusive lower bound used while After is zero.
	Start time.Time
	// After restricts results to points strictly newer than it.
	After time.Time
}

// Querier reads points from a time-series store.
type Querier interface {
	Query(ctx context.Context, filter Filter) ([]Table, error)
}

// Message is what a subscriber receives for each new point.
type Message struct {
	UEID      string    `json:"ue_id"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

func messageFrom(p Point) Message {
	return Message{UEID: p.SubjectID, Metric: p.Metric, Value: p.Value, Timestamp: p.Time}
}

// latest returns the most recent point across all tables.
func latest(tables []Table) (Point, bool) {
	var (
		best  Point
		found bool
	)
	for _, t := range tables {
		for _, p := range t.Points {
			if !found || p.Time.After(best.Time) {
				best, found = p, true
			}
		}
	}
	return best, found
}
