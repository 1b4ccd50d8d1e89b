package telemetry_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/tasktrail/internal/telemetry"
)

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)

	m.AuditRecordsTotal.WithLabelValues("TASK", "UPDATE", telemetry.ResultOK).Inc()
	m.AuditQueriesTotal.WithLabelValues("recent", telemetry.ResultOK).Inc()
	m.AuditPublishErrorsTotal.Inc()

	assert.InDelta(t, 1, testutil.ToFloat64(m.AuditRecordsTotal.WithLabelValues("TASK", "UPDATE", telemetry.ResultOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AuditPublishErrorsTotal), 0)

	n, err := testutil.GatherAndCount(reg, "tasktrail_audit_records_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewMetrics_DoubleRegisterPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	telemetry.NewMetrics(reg)

	assert.Panics(t, func() { telemetry.NewMetrics(reg) })
}

func TestHandler_ServesExposition(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)
	m.AuditRecordsTotal.WithLabelValues("PROJECT", "CREATE", telemetry.ResultOK).Inc()

	srv := httptest.NewServer(telemetry.Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL) //nolint:noctx // test server
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `tasktrail_audit_records_total{action="CREATE",entity_type="PROJECT",result="ok"} 1`)
}
