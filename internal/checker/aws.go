package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/argus-mon/argus/internal/storage"
)

// awsMetricSets maps the service family to the CloudWatch metrics we pull.
// The first entry is the primary metric for classification.
var awsMetricSets = map[string]struct {
	namespace string
	dimension string
	metrics   []string
}{
	"ec2": {
		namespace: "AWS/EC2",
		dimension: "InstanceId",
		metrics:   []string{"CPUUtilization", "NetworkIn", "NetworkOut", "StatusCheckFailed"},
	},
	"rds": {
		namespace: "AWS/RDS",
		dimension: "DBInstanceIdentifier",
		metrics:   []string{"CPUUtilization", "FreeableMemory", "DatabaseConnections", "ReadLatency"},
	},
	"lambda": {
		namespace: "AWS/Lambda",
		dimension: "FunctionName",
		metrics:   []string{"Duration", "Invocations", "Errors", "Throttles"},
	},
}

// AWSChecker pulls the last few minutes of CloudWatch statistics for one
// resource. Advisor, when set, annotates the result with a recommendation.
type AWSChecker struct {
	Advisor Advisor
}

func (c *AWSChecker) Type() string { return storage.TypeAWS }

func (c *AWSChecker) Validate(monitor *storage.Monitor) error {
	cfg := monitor.AWS
	if cfg == nil {
		return fmt.Errorf("aws config missing")
	}
	if cfg.Region == "" {
		return fmt.Errorf("aws requires a region")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return fmt.Errorf("aws requires access_key_id and secret_access_key")
	}
	if monitor.Target == "" {
		return fmt.Errorf("aws requires a resource id target")
	}
	if cfg.Service != "" {
		if _, ok := awsMetricSets[cfg.Service]; !ok {
			return fmt.Errorf("unsupported aws service %q", cfg.Service)
		}
	}
	return nil
}

func (c *AWSChecker) Check(ctx context.Context, monitor *storage.Monitor) (*Result, error) {
	cfg := monitor.AWS
	if cfg == nil {
		return ErrorResult("aws config missing"), nil
	}
	service := cfg.Service
	if service == "" {
		service = "ec2"
	}
	set, ok := awsMetricSets[service]
	if !ok {
		return ErrorResult("unsupported aws service %q", service), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return ErrorResult("aws config: %v", err), nil
	}
	client := cloudwatch.NewFromConfig(awsCfg)

	now := time.Now().UTC()
	start := time.Now()
	summaries := make(map[string]metricSummary, len(set.metrics))
	for _, metric := range set.metrics {
		out, err := client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
			Namespace:  aws.String(set.namespace),
			MetricName: aws.String(metric),
			Dimensions: []cwtypes.Dimension{{
				Name:  aws.String(set.dimension),
				Value: aws.String(monitor.Target),
			}},
			StartTime:  aws.Time(now.Add(-cloudWindow)),
			EndTime:    aws.Time(now),
			Period:     aws.Int32(60),
			Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage},
		})
		if err != nil {
			return ErrorResult("cloudwatch %s: %v", metric, err), nil
		}

		points := make([]metricPoint, 0, len(out.Datapoints))
		for _, dp := range out.Datapoints {
			if dp.Timestamp == nil || dp.Average == nil {
				continue
			}
			points = append(points, metricPoint{Timestamp: *dp.Timestamp, Value: *dp.Average})
		}
		if s, ok := summarizeMetric(points); ok {
			summaries[metric] = s
		}
	}

	elapsed := time.Since(start).Milliseconds()
	return cloudResult(ctx, monitor, c.Advisor, service, monitor.Target, set.metrics[0], summaries, elapsed), nil
}
