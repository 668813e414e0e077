package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := GlobalLogger
	buf := &bytes.Buffer{}
	SetLogger(slog.New(slog.NewJSONHandler(buf, nil)))
	t.Cleanup(func() { GlobalLogger = prev })
	return buf
}

func TestEnsureCorrelationID(t *testing.T) {
	ctx := EnsureCorrelationID(context.Background())
	id := ExtractCorrelationID(ctx)
	require.NotEmpty(t, id)

	assert.Equal(t, id, ExtractCorrelationID(EnsureCorrelationID(ctx)))
	assert.Empty(t, ExtractCorrelationID(context.Background()))
}

func TestRepoLoggerWritesTableAndCorrelation(t *testing.T) {
	buf := captureLogs(t)
	ctx := WithCorrelationID(context.Background(), "corr-1")

	NewRepoLogger("lending_records").LogUpdate(ctx, map[string]interface{}{"id": 7})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "repository update", entry["msg"])
	assert.Equal(t, "lending_records", entry["table"])
	assert.Equal(t, "corr-1", entry["correlation_id"])
	assert.EqualValues(t, 7, entry["id"])
}

func TestRepoLoggerDisabled(t *testing.T) {
	buf := captureLogs(t)
	Config.EnableRepoLogging = false
	defer func() { Config.EnableRepoLogging = true }()

	NewRepoLogger("games").LogError(context.Background(), errors.New("boom"), "read")
	assert.Zero(t, buf.Len())
}

func TestRecordOutcome(t *testing.T) {
	before := testutil.ToFloat64(BorrowRequestOutcomes.WithLabelValues("create", "CONFLICT"))
	RecordOutcome("create", "CONFLICT")
	assert.Equal(t, before+1, testutil.ToFloat64(BorrowRequestOutcomes.WithLabelValues("create", "CONFLICT")))
}
