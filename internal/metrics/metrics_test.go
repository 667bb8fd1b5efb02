package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordRun("ok", 2*time.Second)
	a.RecordFetch("yahoo", time.Second, 250)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.RunsTotal.WithLabelValues("ok")))
	assert.Equal(t, 250.0, testutil.ToFloat64(a.BarsLoaded))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BarsLoaded))
	assert.Positive(t, testutil.ToFloat64(a.LastSuccess))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.EventsSimulated.WithLabelValues("SPLG").Add(12)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `dipsim_simulator_events_total{symbol="SPLG"} 12`)
}
