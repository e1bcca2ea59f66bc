package timeseries

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Influx is an InfluxDB 2.x backend. Readings are stored one measurement
// per series, tagged by group and sensor.
type Influx struct {
	client       influxdb2.Client
	writeAPI     api.WriteAPIBlocking
	queryAPI     api.QueryAPI
	bucket       string
	queryTimeout time.Duration
}

// InfluxConfig configures the InfluxDB backend.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// QueryTimeout bounds each windowed query. Default: 10 seconds.
	QueryTimeout time.Duration
}

// NewInflux connects to an InfluxDB 2.x instance.
func NewInflux(cfg InfluxConfig) (*Influx, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("influx url cannot be empty")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("influx bucket cannot be empty")
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 10 * time.Second
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		client:       client,
		writeAPI:     client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI:     client.QueryAPI(cfg.Org),
		bucket:       cfg.Bucket,
		queryTimeout: cfg.QueryTimeout,
	}, nil
}

func (i *Influx) WritePoint(ctx context.Context, groupID, sensorID, measurement string, value float64, unit string, at time.Time) error {
	p := influxdb2.NewPoint(
		measurement,
		map[string]string{
			"group_id":  groupID,
			"sensor_id": sensorID,
		},
		map[string]interface{}{
			"value": value,
			"unit":  unit,
		},
		at,
	)
	if err := i.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("failed to write point: %w", err)
	}
	return nil
}

func (i *Influx) Window(ctx context.Context, groupID, measurement string, window time.Duration) ([]Point, error) {
	ctx, cancel := context.WithTimeout(ctx, i.queryTimeout)
	defer cancel()

	query := fmt.Sprintf(`
        from(bucket: "%s")
          |> range(start: -%ds)
          |> filter(fn: (r) => r._measurement == "%s")
          |> filter(fn: (r) => r.group_id == "%s")
          |> filter(fn: (r) => r._field == "value")
          |> sort(columns: ["_time"])
    `, i.bucket, int(window.Seconds()), measurement, groupID)

	result, err := i.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query window: %w", err)
	}

	var points []Point
	for result != nil && result.Next() {
		value, ok := result.Record().Value().(float64)
		if !ok {
			continue
		}
		points = append(points, Point{Time: result.Record().Time(), Value: value})
	}
	if result != nil && result.Err() != nil {
		return nil, fmt.Errorf("failed to read query result: %w", result.Err())
	}
	return points, nil
}

func (i *Influx) Close() error {
	i.client.Close()
	return nil
}
