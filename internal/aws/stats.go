package aws

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/go-courier-orders/internal/orders"
)

// StatsReporter periodically pushes order counts by status to CloudWatch.
type StatsReporter struct {
	client    CloudWatchAPI
	namespace string
	stats     func() orders.Statistics
	nowFunc   func() time.Time
	logger    *slog.Logger
}

// NewStatsReporter returns a reporter publishing under namespace.
func NewStatsReporter(client CloudWatchAPI, namespace string, stats func() orders.Statistics, logger *slog.Logger) *StatsReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsReporter{
		client:    client,
		namespace: namespace,
		stats:     stats,
		nowFunc:   time.Now,
		logger:    logger,
	}
}

// Report sends one datum per status plus the total.
func (r *StatsReporter) Report(ctx context.Context) error {
	st := r.stats()
	now := r.nowFunc()

	byStatus := st.ByStatus()
	statuses := make([]string, 0, len(byStatus))
	for s := range byStatus {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	data := make([]cwtypes.MetricDatum, 0, len(statuses)+1)
	data = append(data, cwtypes.MetricDatum{
		MetricName: sdkaws.String("OrdersTotal"),
		Timestamp:  sdkaws.Time(now),
		Unit:       cwtypes.StandardUnitCount,
		Value:      sdkaws.Float64(float64(st.Total)),
	})
	for _, s := range statuses {
		data = append(data, cwtypes.MetricDatum{
			MetricName: sdkaws.String("Orders"),
			Dimensions: []cwtypes.Dimension{{Name: sdkaws.String("Status"), Value: sdkaws.String(s)}},
			Timestamp:  sdkaws.Time(now),
			Unit:       cwtypes.StandardUnitCount,
			Value:      sdkaws.Float64(float64(byStatus[orders.Status(s)])),
		})
	}

	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(r.namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

// Run reports every interval until ctx is cancelled.
func (r *StatsReporter) Run(ctx context.Context, interval time.Duration) {
	r.logger.Info("starting cloudwatch stats reporter", "namespace", r.namespace, "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("cloudwatch stats reporter stopped")
			return
		case <-ticker.C:
			reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := r.Report(reqCtx); err != nil {
				r.logger.Error("failed to report order stats", "error", err)
			}
			cancel()
		}
	}
}
