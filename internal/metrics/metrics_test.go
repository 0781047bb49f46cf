package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveBackup(t *testing.T) {
	m := New()

	m.ObserveBackup("full", "completed", 2*time.Second, 1024)
	m.ObserveBackup("full", "completed", time.Second, 2048)
	m.ObserveBackup("full", "failed", time.Second, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.backups.WithLabelValues("full", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backups.WithLabelValues("full", "failed")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.backupSize.WithLabelValues("full")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveRestore("selective", "completed")
	m.ObserveMigration("up", "applied")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `vaultkeeper_restores_total{restore_type="selective",status="completed"} 1`))
	assert.True(t, strings.Contains(body, `vaultkeeper_migrations_total{direction="up",status="applied"} 1`))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveBackup("full", "completed", time.Second, 1)
	m.ObserveRestore("full", "failed")
	m.ObserveMigration("down", "failed")
	m.ObserveRequest("GET", "/backups", 200, time.Millisecond)
	assert.Nil(t, m.Registry())
}
