package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFlux(t *testing.T) {
	options := InfluxOptions{Bucket: "testbed", Measurement: "system_usage", SubjectTag: "ue_id"}
	start := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{
			name:   "lookback window",
			filter: Filter{SubjectID: "UE_001", Metric: "cpu", Start: start},
			want: `from(bucket: "testbed")
  |> range(start: 2025-05-01T10:00:00Z)
  |> filter(fn: (r) => r._measurement == "system_usage" and r["ue_id"] == "UE_001" and r._field == "cpu")
  |> last()`,
		},
		{
			name:   "after watermark",
			filter: Filter{SubjectID: "UE_001", Metric: "cpu", Start: start, After: start.Add(1500 * time.Millisecond)},
			want: `from(bucket: "testbed")
  |> range(start: 2025-05-01T10:00:01.5Z)
  |> filter(fn: (r) => r._measurement == "system_usage" and r["ue_id"] == "UE_001" and r._field == "cpu")
  |> filter(fn: (r) => r._time > 2025-05-01T10:00:01.5Z)
  |> last()`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildFlux(options, tt.filter))
		})
	}
}

func TestFluxStringEscapes(t *testing.T) {
	assert.Equal(t, `"a\"b\\c\${x}"`, fluxString(`a"b\c${x}`))
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		in   any
		want float64
	}{
		{in: 1.5, want: 1.5},
		{in: int64(-3), want: -3},
		{in: uint64(7), want: 7},
		{in: true, want: 1},
	}
	for _, tt := range tests {
		got, err := toFloat(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := toFloat("high")
	assert.Error(t, err)
}
