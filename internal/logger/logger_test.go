package logger

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRFC3339Millis(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 89_000_000, time.FixedZone("X", 3600))
	assert.Equal(t, "2026-03-04T04:06:07.089Z", formatRFC3339Millis(ts))
}

func TestNewWriter_DropsEmptyStrings(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	log := NewWriter(&buf, false)

	log.Info("claims: settled", "user", "u1", "trace_id", "")
	log.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "claims: settled")
	assert.Contains(t, out, "user=u1")
	assert.NotContains(t, out, "trace_id")
	assert.NotContains(t, out, "hidden")
}

func TestReplaceAttr_Time(t *testing.T) {
	a := replaceAttr(nil, slog.Time(slog.TimeKey, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Equal(t, "2026-01-02T03:04:05.000Z", a.Value.String())
}
