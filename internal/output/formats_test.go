package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"junit", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewSummary(t *testing.T) {
	s := NewSummary(testSnapshot(), testInfos)

	require.Len(t, s.Workloads, 2)
	assert.Equal(t, "w1", s.Workloads[0].Name)
	assert.Equal(t, int64(2), s.Workloads[0].Stats.Calls)
	assert.Equal(t, int64(1), s.Workloads[0].Stats.Failures)
	assert.Equal(t, 10.0, s.Workloads[1].Stats.DocsPerCall)
	assert.InDelta(t, 2.0, s.Workloads[1].Stats.LatencyMs.P50, 0.1)
	assert.Equal(t, int64(1502), s.Total.Calls)
	assert.False(t, s.EndTime.Before(s.StartTime))
}

func TestWriteSummary_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, FormatJSON, NewSummary(testSnapshot(), testInfos)))

	out := buf.String()
	require.True(t, gjson.Valid(out))

	assert.Equal(t, int64(2), gjson.Get(out, "workloads.#").Int())
	assert.Equal(t, "w1", gjson.Get(out, "workloads.0.name").String())
	assert.Equal(t, "find", gjson.Get(out, "workloads.0.op").String())
	assert.Equal(t, int64(4), gjson.Get(out, "workloads.0.threads").Int())
	assert.Equal(t, int64(10), gjson.Get(out, "workloads.1.batch").Int())
	assert.False(t, gjson.Get(out, "workloads.1.pace").Exists(), "unset pace is omitted")
	assert.Equal(t, int64(15000), gjson.Get(out, "workloads.1.stats.documents").Int())
	assert.Equal(t, int64(1502), gjson.Get(out, "total.calls").Int())
	assert.True(t, gjson.Get(out, "total.latencyMs.p99").Exists())
	assert.NotEmpty(t, gjson.Get(out, "duration").String())
}

func TestWriteSummary_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, FormatYAML, NewSummary(testSnapshot(), testInfos)))

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))

	workloads, ok := decoded["workloads"].([]interface{})
	require.True(t, ok)
	require.Len(t, workloads, 2)
	first := workloads[0].(map[string]interface{})
	assert.Equal(t, "w1", first["name"], "workload info is inlined")
	assert.Contains(t, first, "stats")
}

func TestWriteSummary_Text(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteSummary(&buf, FormatText, &Summary{}))
}
