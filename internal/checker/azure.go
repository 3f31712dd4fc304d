package checker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/monitor/azquery"

	"github.com/argus-mon/argus/internal/storage"
)

// azureMetricSets maps the service family to Azure Monitor metric names.
// The first entry is primary.
var azureMetricSets = map[string][]string{
	"vm":          {"Percentage CPU", "Network In Total", "Network Out Total", "Disk Read Bytes"},
	"app_service": {"AverageResponseTime", "Requests", "Http5xx", "CpuTime"},
}

// AzureChecker pulls recent Azure Monitor metrics for one ARM resource.
type AzureChecker struct {
	Advisor Advisor
}

func (c *AzureChecker) Type() string { return storage.TypeAzure }

func (c *AzureChecker) Validate(monitor *storage.Monitor) error {
	cfg := monitor.Azure
	if cfg == nil {
		return fmt.Errorf("azure config missing")
	}
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return fmt.Errorf("azure requires tenant_id, client_id and client_secret")
	}
	if !strings.HasPrefix(monitor.Target, "/subscriptions/") {
		return fmt.Errorf("azure target must be a full ARM resource id")
	}
	if cfg.Service != "" {
		if _, ok := azureMetricSets[cfg.Service]; !ok {
			return fmt.Errorf("unsupported azure service %q", cfg.Service)
		}
	}
	return nil
}

func (c *AzureChecker) Check(ctx context.Context, monitor *storage.Monitor) (*Result, error) {
	cfg := monitor.Azure
	if cfg == nil {
		return ErrorResult("azure config missing"), nil
	}
	service := cfg.Service
	if service == "" {
		service = "vm"
	}
	metrics, ok := azureMetricSets[service]
	if !ok {
		return ErrorResult("unsupported azure service %q", service), nil
	}

	cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	if err != nil {
		return ErrorResult("azure credential: %v", err), nil
	}
	client, err := azquery.NewMetricsClient(cred, nil)
	if err != nil {
		return ErrorResult("azure metrics client: %v", err), nil
	}

	start := time.Now()
	resp, err := client.QueryResource(ctx, monitor.Target, &azquery.MetricsClientQueryResourceOptions{
		MetricNames: to.Ptr(strings.Join(metrics, ",")),
		Timespan:    to.Ptr(azquery.TimeInterval("PT5M")),
		Interval:    to.Ptr("PT1M"),
		Aggregation: []*azquery.AggregationType{to.Ptr(azquery.AggregationTypeAverage)},
	})
	if err != nil {
		return ErrorResult("azure query: %v", err), nil
	}
	elapsed := time.Since(start).Milliseconds()

	summaries := make(map[string]metricSummary, len(metrics))
	for _, metric := range resp.Value {
		if metric.Name == nil || metric.Name.Value == nil {
			continue
		}
		var points []metricPoint
		for _, series := range metric.TimeSeries {
			for _, dp := range series.Data {
				if dp.TimeStamp == nil || dp.Average == nil {
					continue
				}
				points = append(points, metricPoint{Timestamp: *dp.TimeStamp, Value: *dp.Average})
			}
		}
		if s, ok := summarizeMetric(points); ok {
			summaries[*metric.Name.Value] = s
		}
	}

	return cloudResult(ctx, monitor, c.Advisor, service, monitor.Target, metrics[0], summaries, elapsed), nil
}
