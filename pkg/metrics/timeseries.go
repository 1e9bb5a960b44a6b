package metrics

import (
	"context"
	"sort"
	"strconv"

	"github.com/prometheus/prometheus/prompb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mjasion/balena-home/pkg/types"
)

type seriesKey struct {
	name   string
	device string
	mac    string
	index  int
	unit   string
}

// BuildBTHomeTimeSeries groups readings into one series per metric name,
// device and repeat index. Samples within a series keep buffer order.
func BuildBTHomeTimeSeries(ctx context.Context, readings []*types.Reading) ([]prompb.TimeSeries, error) {
	_, span := otel.Tracer("metrics").Start(ctx, "metrics.BuildBTHomeTimeSeries")
	defer span.End()

	if len(readings) == 0 {
		span.SetStatus(codes.Ok, "no readings")
		return nil, nil
	}

	grouped := make(map[seriesKey][]prompb.Sample)
	var order []seriesKey
	for _, r := range readings {
		key := seriesKey{
			name:   r.MetricName(),
			device: r.DeviceName,
			mac:    r.MAC,
			index:  r.Index,
			unit:   r.Unit,
		}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], prompb.Sample{
			Value:     r.Value,
			Timestamp: r.Timestamp.UnixMilli(),
		})
	}

	timeSeries := make([]prompb.TimeSeries, 0, len(order))
	for _, key := range order {
		labels := []prompb.Label{
			{Name: "__name__", Value: key.name},
			{Name: "device_name", Value: key.device},
			{Name: "index", Value: strconv.Itoa(key.index)},
			{Name: "mac", Value: key.mac},
		}
		if key.unit != "" {
			labels = append(labels, prompb.Label{Name: "unit", Value: key.unit})
		}
		// remote_write requires labels sorted by name
		sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })

		timeSeries = append(timeSeries, prompb.TimeSeries{
			Labels:  labels,
			Samples: grouped[key],
		})
	}

	span.SetAttributes(attribute.Int("metrics.bthome_time_series_count", len(timeSeries)))
	span.SetStatus(codes.Ok, "BTHome time series built")

	return timeSeries, nil
}
