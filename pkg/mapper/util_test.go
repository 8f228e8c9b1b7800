package mapper

import (
	"context"
	"net/http/httptest"
	"runtime"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathExists(t *testing.T) {
	assert.True(t, pathExists(t.TempDir()))
	assert.False(t, pathExists("/nonexistent/bufmap/path"))
}

func TestCanCreateOnDevShm(t *testing.T) {
	// Paths outside /dev/shm always pass.
	assert.True(t, CanCreateOnDevShm(1<<20, "/tmp/bufmap-test"))

	if runtime.GOOS != "linux" {
		t.Skip("/dev/shm is linux-only")
	}
	assert.True(t, CanCreateOnDevShm(1, "/dev/shm/bufmap-test"))
	assert.False(t, CanCreateOnDevShm(1<<62, "/dev/shm/bufmap-test"))
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(0), AlignUp(0, 8))
	assert.Equal(t, uint64(8), AlignUp(1, 8))
	assert.Equal(t, uint64(8), AlignUp(8, 8))
	assert.Equal(t, uint64(128), AlignUp(65, 64))
}

func TestHealthHandler(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	h := NewHealthHandler(m)

	rec := httptest.NewRecorder()
	h.LiveEndpoint(rec, httptest.NewRequest("GET", "/live", nil))
	assert.Equal(t, 200, rec.Code)

	rec = httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, 200, rec.Code)
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, c.Write(&metric))
	return metric.GetCounter().GetValue()
}

func TestImportMetrics(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	imports := counterValue(t, importsTotal)
	failures := counterValue(t, importFailuresTotal)

	h, err := m.ImportBuffer(ctx, testRawHandle(testInfo()))
	require.NoError(t, err)
	_, err = m.ImportBuffer(ctx, nil)
	require.Error(t, err)
	require.NoError(t, m.FreeBuffer(h))

	assert.Equal(t, imports+1, counterValue(t, importsTotal))
	assert.Equal(t, failures+1, counterValue(t, importFailuresTotal))
}
