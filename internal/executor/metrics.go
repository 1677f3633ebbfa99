package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
)

// Metrics emits the executor's own operational telemetry: a per-job
// duration metric, plus TailLogs for reading the tail of the worker's
// own log group. Nothing in the executor calls TailLogs, so the
// statistics payload carries no log tail. Both clients come from the one
// aws.Config the worker already loaded.
type Metrics struct {
	CloudWatch     *cloudwatch.Client
	CloudWatchLogs *cloudwatchlogs.Client
	Namespace      string // defaults to "Sentinel/Executor"
	LogGroupName   string // worker container's own log group, for TailLogs
}

func NewMetrics(cfg aws.Config, namespace, logGroupName string) *Metrics {
	if namespace == "" {
		namespace = "Sentinel/Executor"
	}
	return &Metrics{
		CloudWatch:     cloudwatch.NewFromConfig(cfg),
		CloudWatchLogs: cloudwatchlogs.NewFromConfig(cfg),
		Namespace:      namespace,
		LogGroupName:   logGroupName,
	}
}

// PutJobDuration emits a single-job duration metric, dimensioned by
// tenant and status, so operators can alert on scans that run long
// without waiting for the statistics document to land.
func (m *Metrics) PutJobDuration(ctx context.Context, tenant string, status string, d time.Duration) error {
	if m == nil || m.CloudWatch == nil {
		return nil
	}
	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.Namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("JobDurationSeconds"),
				Unit:       cwtypes.StandardUnitSeconds,
				Value:      aws.Float64(d.Seconds()),
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String("Tenant"), Value: aws.String(tenant)},
					{Name: aws.String("Status"), Value: aws.String(status)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("executor: put job duration metric: %w", err)
	}
	return nil
}

// TailLogs returns the most recent log events from the worker's own log
// stream. It has no caller in this module; the statistics payload is
// written without it.
func (m *Metrics) TailLogs(ctx context.Context, logStreamName string, limit int32) ([]string, error) {
	if m == nil || m.CloudWatchLogs == nil || m.LogGroupName == "" {
		return nil, nil
	}
	out, err := m.CloudWatchLogs.GetLogEvents(ctx, &cloudwatchlogs.GetLogEventsInput{
		LogGroupName:  aws.String(m.LogGroupName),
		LogStreamName: aws.String(logStreamName),
		Limit:         aws.Int32(limit),
		StartFromHead: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("executor: tail log stream %s: %w", logStreamName, err)
	}
	lines := make([]string, 0, len(out.Events))
	for _, e := range out.Events {
		lines = append(lines, aws.ToString(e.Message))
	}
	return lines, nil
}
