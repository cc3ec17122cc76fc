package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metricValue returns the counter or gauge value of the series name whose
// labels include every pair in labels, or -1 when no series matches.
func metricValue(t *testing.T, reg prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue series
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return -1
}

func (ts *testServer) invocations(t *testing.T, handler, outcome string) float64 {
	t.Helper()
	return metricValue(t, ts.reg, "waiterbot_handler_invocations_total",
		map[string]string{labelHandler: handler, "outcome": outcome})
}

func TestMetrics_EndpointServesRegistry(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	ts.post(t, "/events/food/margherita", `{}`)

	srv := httptest.NewServer(ts.Handler())
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "waiterbot_handler_invocations_total")
}

func TestMetrics_HTTPRequestsLabelledByPattern(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	ts.post(t, "/events/food/margherita", `{}`)
	ts.post(t, "/events/food/carbonara", `{}`)
	ts.post(t, "/nowhere", `{}`)

	assert.Equal(t, 2.0, metricValue(t, ts.reg, "waiterbot_http_requests_total", map[string]string{
		"method": http.MethodPost, labelHandler: "POST /events/food/{documentId}", "code": "200",
	}))
	assert.Equal(t, 1.0, metricValue(t, ts.reg, "waiterbot_http_requests_total", map[string]string{
		labelHandler: "unmatched", "code": "404",
	}))
}

func TestMetrics_ObserveResync(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	ts.ObserveResync(3)
	ts.ObserveResync(4)

	assert.Equal(t, 2.0, metricValue(t, ts.reg, "waiterbot_index_resyncs_total", nil))
	assert.Equal(t, 4.0, metricValue(t, ts.reg, "waiterbot_index_items", nil))
}

func TestMetrics_InFlightReturnsToZero(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	ts.post(t, "/events/query/conv-1/chats/c", `{"source":"user","message":"hi"}`)
	assert.Equal(t, 0.0, metricValue(t, ts.reg, "waiterbot_handler_in_flight", nil))
}
