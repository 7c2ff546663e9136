// Package metrics publishes API and payment telemetry to CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"tipkoro/internal/types"
)

// putTimeout bounds each PutMetricData call so telemetry never holds a request.
const putTimeout = time.Second

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchCollector emits:
//   - APIRequest and APILatency with {Endpoint, Status}
//   - PaymentVerification with {Source, Outcome}
//   - WebhookRejected with {Outcome}
//   - AdminNotifyFailure with {Outcome} naming the event
//
// Publish failures are logged and dropped.
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchCollector creates a collector. An empty namespace falls back
// to types.MetricNamespace.
func NewCloudWatchCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchCollector {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchCollector{client: client, namespace: namespace, logger: logger}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func (c *CloudWatchCollector) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), putTimeout)
	defer cancel()
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: data,
	})
	if err != nil {
		c.logger.Error("failed to publish metric",
			"error", err.Error(),
			"metric", aws.ToString(data[0].MetricName),
		)
	}
}

// RecordRequest records one API request and its latency. Method and route
// pattern together form the endpoint dimension.
func (c *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		dim(types.DimEndpoint, strings.TrimSpace(method+" "+endpoint)),
		dim(types.DimStatus, status),
	}
	c.put(context.Background(),
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPIRequest),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
	)
}

// RecordVerification counts a gateway verification by where it came from
// and its normalized status.
func (c *CloudWatchCollector) RecordVerification(ctx context.Context, source string, status types.PaymentStatus) {
	c.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricPaymentVerification),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			dim(types.DimSource, source),
			dim(types.DimOutcome, string(status)),
		},
	})
}

// RecordWebhookRejected counts a webhook refused before processing.
func (c *CloudWatchCollector) RecordWebhookRejected(ctx context.Context, reason string) {
	c.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricWebhookRejected),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{dim(types.DimOutcome, reason)},
	})
}

// RecordAdminNotifyFailure counts an admin event that could not be delivered.
func (c *CloudWatchCollector) RecordAdminNotifyFailure(ctx context.Context, event string) {
	c.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAdminNotifyFailure),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{dim(types.DimOutcome, event)},
	})
}

// Noop discards everything. Used locally and when metrics are disabled.
type Noop struct{}

func (Noop) RecordRequest(string, string, string, time.Duration)             {}
func (Noop) RecordVerification(context.Context, string, types.PaymentStatus) {}
func (Noop) RecordWebhookRejected(context.Context, string)                   {}
func (Noop) RecordAdminNotifyFailure(context.Context, string)                {}
