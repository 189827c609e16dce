package logger

import (
	stdjson "encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BegleyBrothers/swanling/internal/metrics"
)

func TestSwanlingLogFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swanling.log")
	log, closeLog, err := New(Config{SwanlingLog: path})
	require.NoError(t, err)

	log.Infof("%ds into swanling attack: \"%s %s\" [%d] took abnormally long (%d ms), task name: \"%s\"",
		11, "GET", "http://example.com/node/1557", 200, 1814, "node page")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimRight(string(data), "\n")

	want := regexp.MustCompile(`^\d{2}:\d{2}:\d{2} \[INFO\] 11s into swanling attack: ` +
		`"GET http://example\.com/node/1557" \[200\] took abnormally long \(1814 ms\), task name: "node page"$`)
	assert.Regexp(t, want, line)
}

func TestSwanlingLogLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swanling.log")
	log, closeLog, err := New(Config{SwanlingLog: path})
	require.NoError(t, err)

	log.Info("info line")
	log.Warn("warn line")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] info line")
	assert.Contains(t, string(data), "[WARNING] warn line")
}

func TestNoLogFileNoError(t *testing.T) {
	log, closeLog, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, log)
	require.NoError(t, closeLog())
}

func TestRequestLogSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.log")
	l, err := NewRequestLogger(path)
	require.NoError(t, err)

	l.Log(metrics.Sample{
		Elapsed:      11401,
		Method:       metrics.MethodGet,
		Name:         "node page",
		URL:          "http://example.com/node/1557",
		FinalURL:     "http://example.com/node/1557",
		ResponseTime: 1814,
		StatusCode:   200,
		Success:      true,
		User:         2,
		UserCadence:  1727,
	})
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 1)

	var decoded map[string]any
	require.NoError(t, stdjson.Unmarshal([]byte(lines[0]), &decoded))

	keys := make([]string, 0, len(decoded))
	for k := range decoded {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{
		"coordinated_omission_elapsed",
		"elapsed",
		"error",
		"final_url",
		"method",
		"name",
		"redirected",
		"response_time",
		"status_code",
		"success",
		"update",
		"url",
		"user",
		"user_cadence",
	}, keys)

	assert.Equal(t, "Get", decoded["method"])
	assert.Equal(t, float64(0), decoded["coordinated_omission_elapsed"])
	assert.Equal(t, float64(1727), decoded["user_cadence"])
}

func TestRequestLogOneLinePerSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.log")
	l, err := NewRequestLogger(path)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		l.Log(metrics.Sample{Name: "GET /", ResponseTime: int64(i)})
	}
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 100)
}

func TestNilRequestLogger(t *testing.T) {
	l, err := NewRequestLogger("")
	require.NoError(t, err)
	require.Nil(t, l)

	// All operations are no-ops on the nil logger.
	l.Log(metrics.Sample{})
	assert.NoError(t, l.Close())
}
