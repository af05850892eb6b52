package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := get()
	okBefore := testutil.ToFloat64(m.persistTotal.WithLabelValues("cache", "ok"))
	errBefore := testutil.ToFloat64(m.persistTotal.WithLabelValues("remote", "error"))

	Persist("cache", nil)
	Persist("remote", errors.New("boom"))
	ChartNodes(7)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(m.persistTotal.WithLabelValues("cache", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(m.persistTotal.WithLabelValues("remote", "error")))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.chartNodes))
}

func TestServe(t *testing.T) {
	DragEnded("committed")

	addr, stop, err := Serve("127.0.0.1:0")
	require.NoError(t, err)
	defer stop(context.Background())

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `orgterm_drag_sessions_total{end="committed"}`)
}
