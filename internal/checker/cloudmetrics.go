package checker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/argus-mon/argus/internal/storage"
)

// cloudWindow is how far back the cloud checkers query datapoints.
const cloudWindow = 5 * time.Minute

// metricPoint is one datapoint of a cloud metric series.
type metricPoint struct {
	Timestamp time.Time
	Value     float64
}

// metricSummary aggregates one metric over the query window.
type metricSummary struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Trend   string  `json:"trend"`
}

// summarizeMetric reduces a series to its summary. Reports false when the
// series is empty.
func summarizeMetric(points []metricPoint) (metricSummary, bool) {
	if len(points) == 0 {
		return metricSummary{}, false
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })

	s := metricSummary{
		Current: points[len(points)-1].Value,
		Min:     points[0].Value,
		Max:     points[0].Value,
	}
	sum := 0.0
	for _, p := range points {
		sum += p.Value
		if p.Value < s.Min {
			s.Min = p.Value
		}
		if p.Value > s.Max {
			s.Max = p.Value
		}
	}
	s.Average = sum / float64(len(points))
	s.Trend = trendOf(points)
	return s, true
}

// trendOf compares the mean of the recent half against the older half;
// a swing beyond 10% either way counts as a trend.
func trendOf(points []metricPoint) string {
	if len(points) < 2 {
		return "stable"
	}
	half := len(points) / 2
	older := meanOf(points[:half])
	recent := meanOf(points[half:])

	if older == 0 {
		if recent > 0 {
			return "increasing"
		}
		return "stable"
	}
	change := (recent - older) / older
	switch {
	case change > 0.10:
		return "increasing"
	case change < -0.10:
		return "decreasing"
	default:
		return "stable"
	}
}

func meanOf(points []metricPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range points {
		sum += p.Value
	}
	return sum / float64(len(points))
}

// cloudResult assembles the shared result shape of the aws, gcp and azure
// checkers: classify the primary metric, attach every summary, and ask the
// advisor for a recommendation if one is wired in.
func cloudResult(ctx context.Context, monitor *storage.Monitor, adv Advisor, service, resource, primary string, summaries map[string]metricSummary, elapsed int64) *Result {
	result := &Result{
		ResponseTime: elapsed,
		Timestamp:    time.Now().UTC(),
		Metadata:     map[string]any{"metrics": summaries, "service": service},
	}

	ps, ok := summaries[primary]
	if !ok {
		result.Status = StatusError
		result.Message = fmt.Sprintf("no datapoints for %s in the last %s", primary, cloudWindow)
		return result
	}

	result.Value = Float(ps.Current)
	status := Classify(ps.Current, monitorThresholds(monitor))
	result.Status = status
	result.Success = status == StatusOK || status == StatusWarning
	result.Message = fmt.Sprintf("%s=%.1f (avg %.1f, trend %s)", primary, ps.Current, ps.Average, ps.Trend)

	if adv != nil {
		current := make(map[string]float64, len(summaries))
		for name, s := range summaries {
			current[name] = s.Current
		}
		if rec, ok := adv.Recommend(ctx, service, resource, current); ok {
			result.Metadata["recommendation"] = rec
		}
	}
	return result
}
