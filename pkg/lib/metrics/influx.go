package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

const (
	DefaultMeasurement = "system_usage"
	DefaultSubjectTag  = "ue_id"
)

// InfluxOptions points an InfluxQuerier at a bucket.
type InfluxOptions struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	// SubjectTag is the tag holding the subject id.
	SubjectTag string
}

// InfluxQuerier reads points with Flux queries against InfluxDB 2.x.
type InfluxQuerier struct {
	client  influxdb2.Client
	api     api.QueryAPI
	options InfluxOptions
}

func NewInfluxQuerier(options InfluxOptions) *InfluxQuerier {
	if options.Measurement == "" {
		options.Measurement = DefaultMeasurement
	}
	if options.SubjectTag == "" {
		options.SubjectTag = DefaultSubjectTag
	}
	client := influxdb2.NewClient(options.URL, options.Token)
	return &InfluxQuerier{client: client, api: client.QueryAPI(options.Org), options: options}
}

func (q *InfluxQuerier) Close() {
	q.client.Close()
}

func (q *InfluxQuerier) Query(ctx context.Context, filter Filter) ([]Table, error) {
	result, err := q.api.Query(ctx, buildFlux(q.options, filter))
	if err != nil {
		return nil, err
	}
	defer result.Close()

	var tables []Table
	for result.Next() {
		if result.TableChanged() || len(tables) == 0 {
			tables = append(tables, Table{})
		}
		rec := result.Record()
		value, err := toFloat(rec.Value())
		if err != nil {
			return nil, err
		}
		current := &tables[len(tables)-1]
		current.Points = append(current.Points, Point{
			SubjectID: filter.SubjectID,
			Metric:    filter.Metric,
			Value:     value,
			Time:      rec.Time(),
		})
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return tables, nil
}

func buildFlux(options InfluxOptions, filter Filter) string {
	start := filter.Start
	if !filter.After.IsZero() {
		start = filter.After
	}

	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", fluxString(options.Bucket))
	fmt.Fprintf(&b, "  |> range(start: %s)\n", fluxTime(start))
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %s and r[%s] == %s and r._field == %s)\n",
		fluxString(options.Measurement),
		fluxString(options.SubjectTag),
		fluxString(filter.SubjectID),
		fluxString(filter.Metric))
	if !filter.After.IsZero() {
		fmt.Fprintf(&b, "  |> filter(fn: (r) => r._time > %s)\n", fluxTime(filter.After))
	}
	b.WriteString("  |> last()")

	return b.String()
}

var fluxEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `${`, `\${`)

func fluxString(s string) string {
	return `"` + fluxEscaper.Replace(s) + `"`
}

func fluxTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported field value %T", v)
	}
}
