package logger

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// PutMetricData accepts at most this many data points per call.
const maxDatumsPerPut = 1000

type metricPutter interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
	PutDashboard(ctx context.Context, in *cloudwatch.PutDashboardInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutDashboardOutput, error)
}

var cw = struct {
	sync.RWMutex
	client    metricPutter
	namespace string
	dashboard string
}{namespace: "EnergyLink", dashboard: "EnergyLink"}

// InitCloudWatch enables metric publishing. An empty region falls back to
// AWS_REGION; a client that cannot be built leaves publishing disabled.
func InitCloudWatch(region, namespace, dashboard string) {
	log := GetLogger().WithComponent("cloudwatch")

	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	ctx := context.Background()
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	setCloudWatch(cloudwatch.NewFromConfig(awsCfg), namespace, dashboard)
	log.WithFields(Fields{"region": region, "namespace": namespace}).Info("initialized CloudWatch client")
	CreateDefaultDashboard(ctx)
}

func setCloudWatch(client metricPutter, namespace, dashboard string) {
	cw.Lock()
	defer cw.Unlock()
	cw.client = client
	if namespace != "" {
		cw.namespace = namespace
	}
	if dashboard != "" {
		cw.dashboard = dashboard
	}
}

// publishMetrics is a no-op until InitCloudWatch succeeded.
func publishMetrics(ctx context.Context, data []cwtypes.MetricDatum) {
	cw.RLock()
	client, namespace := cw.client, cw.namespace
	cw.RUnlock()
	if client == nil || len(data) == 0 {
		return
	}

	now := time.Now()
	for i := range data {
		if data[i].Timestamp == nil {
			data[i].Timestamp = aws.Time(now)
		}
	}

	for start := 0; start < len(data); start += maxDatumsPerPut {
		end := min(start+maxDatumsPerPut, len(data))
		if _, err := client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(namespace),
			MetricData: data[start:end],
		}); err != nil {
			GetLogger().WithComponent("cloudwatch").WithError(err).
				WithFields(Fields{"count": end - start}).Warn("failed to publish CloudWatch metrics")
			return
		}
	}
}

type dashboardWidget struct {
	Type       string         `json:"type"`
	X          int            `json:"x"`
	Y          int            `json:"y"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Properties map[string]any `json:"properties"`
}

func metricWidget(namespace, title string, y int, stat string, names ...string) dashboardWidget {
	series := make([][]string, 0, len(names))
	for _, n := range names {
		series = append(series, []string{namespace, "EnergyLink-" + n})
	}
	return dashboardWidget{
		Type:   "metric",
		Y:      y,
		Width:  24,
		Height: 6,
		Properties: map[string]any{
			"metrics": series,
			"period":  60,
			"stat":    stat,
			"title":   title,
			"view":    "timeSeries",
		},
	}
}

func dashboardBody(namespace string) (string, error) {
	body := map[string]any{"widgets": []dashboardWidget{
		metricWidget(namespace, "Regulatory submissions", 0, "Sum", "submissions_ok", "submissions_failed", "audit_appends"),
		metricWidget(namespace, "Market data", 6, "Sum", "price_fetch_ok", "price_fetch_failed"),
		metricWidget(namespace, "Runtime", 12, "Average", "CPUPercent", "MemoryMB"),
	}}
	out, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// CreateDefaultDashboard puts the EnergyLink dashboard. Failures are only logged.
func CreateDefaultDashboard(ctx context.Context) {
	cw.RLock()
	client, namespace, name := cw.client, cw.namespace, cw.dashboard
	cw.RUnlock()
	if client == nil {
		return
	}

	log := GetLogger().WithComponent("cloudwatch")
	body, err := dashboardBody(namespace)
	if err != nil {
		log.WithError(err).Warn("failed to render CloudWatch dashboard")
		return
	}
	if _, err := client.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(name),
		DashboardBody: aws.String(body),
	}); err != nil {
		log.WithError(err).Warn("failed to create CloudWatch dashboard")
	}
}
