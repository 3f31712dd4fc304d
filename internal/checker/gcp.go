package checker

import (
	"context"
	"fmt"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/argus-mon/argus/internal/storage"
)

// gcpMetricSets maps the service family to Cloud Monitoring metric types.
// The first entry is primary. scale converts the raw value for
// classification (utilization fractions become percent).
var gcpMetricSets = map[string]struct {
	label   string
	metrics []gcpMetric
}{
	"gce": {
		label: "resource.labels.instance_id",
		metrics: []gcpMetric{
			{name: "cpu", metricType: "compute.googleapis.com/instance/cpu/utilization", scale: 100},
			{name: "network_in", metricType: "compute.googleapis.com/instance/network/received_bytes_count", scale: 1},
			{name: "network_out", metricType: "compute.googleapis.com/instance/network/sent_bytes_count", scale: 1},
		},
	},
	"cloudsql": {
		label: "resource.labels.database_id",
		metrics: []gcpMetric{
			{name: "cpu", metricType: "cloudsql.googleapis.com/database/cpu/utilization", scale: 100},
			{name: "memory", metricType: "cloudsql.googleapis.com/database/memory/utilization", scale: 100},
			{name: "connections", metricType: "cloudsql.googleapis.com/database/network/connections", scale: 1},
		},
	},
}

type gcpMetric struct {
	name       string
	metricType string
	scale      float64
}

// GCPChecker pulls recent Cloud Monitoring time series for one resource.
type GCPChecker struct {
	Advisor Advisor
}

func (c *GCPChecker) Type() string { return storage.TypeGCP }

func (c *GCPChecker) Validate(monitor *storage.Monitor) error {
	cfg := monitor.GCP
	if cfg == nil {
		return fmt.Errorf("gcp config missing")
	}
	if cfg.ProjectID == "" {
		return fmt.Errorf("gcp requires a project_id")
	}
	if monitor.Target == "" {
		return fmt.Errorf("gcp requires a resource id target")
	}
	if cfg.Service != "" {
		if _, ok := gcpMetricSets[cfg.Service]; !ok {
			return fmt.Errorf("unsupported gcp service %q", cfg.Service)
		}
	}
	return nil
}

func (c *GCPChecker) Check(ctx context.Context, monitor *storage.Monitor) (*Result, error) {
	cfg := monitor.GCP
	if cfg == nil {
		return ErrorResult("gcp config missing"), nil
	}
	service := cfg.Service
	if service == "" {
		service = "gce"
	}
	set, ok := gcpMetricSets[service]
	if !ok {
		return ErrorResult("unsupported gcp service %q", service), nil
	}

	var opts []option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	client, err := monitoring.NewMetricClient(ctx, opts...)
	if err != nil {
		return ErrorResult("gcp client: %v", err), nil
	}
	defer client.Close()

	now := time.Now().UTC()
	interval := &monitoringpb.TimeInterval{
		StartTime: timestamppb.New(now.Add(-cloudWindow)),
		EndTime:   timestamppb.New(now),
	}

	start := time.Now()
	summaries := make(map[string]metricSummary, len(set.metrics))
	for _, metric := range set.metrics {
		it := client.ListTimeSeries(ctx, &monitoringpb.ListTimeSeriesRequest{
			Name:     "projects/" + cfg.ProjectID,
			Filter:   fmt.Sprintf("metric.type = %q AND %s = %q", metric.metricType, set.label, monitor.Target),
			Interval: interval,
			View:     monitoringpb.ListTimeSeriesRequest_FULL,
		})

		var points []metricPoint
		for {
			ts, err := it.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return ErrorResult("gcp %s: %v", metric.name, err), nil
			}
			for _, p := range ts.GetPoints() {
				end := p.GetInterval().GetEndTime()
				if end == nil {
					continue
				}
				points = append(points, metricPoint{
					Timestamp: end.AsTime(),
					Value:     typedValue(p.GetValue()) * metric.scale,
				})
			}
		}
		if s, ok := summarizeMetric(points); ok {
			summaries[metric.name] = s
		}
	}

	elapsed := time.Since(start).Milliseconds()
	return cloudResult(ctx, monitor, c.Advisor, service, monitor.Target, set.metrics[0].name, summaries, elapsed), nil
}

func typedValue(v *monitoringpb.TypedValue) float64 {
	switch tv := v.GetValue().(type) {
	case *monitoringpb.TypedValue_DoubleValue:
		return tv.DoubleValue
	case *monitoringpb.TypedValue_Int64Value:
		return float64(tv.Int64Value)
	default:
		return 0
	}
}
