package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersAreInstanceScoped(t *testing.T) {
	a := New()
	b := New()

	a.AbortedRounds.Inc()
	a.BlockRejects.WithLabelValues("duplicate").Add(3)

	require.Equal(t, 1.0, testutil.ToFloat64(a.AbortedRounds))
	require.Equal(t, 3.0, testutil.ToFloat64(a.BlockRejects.WithLabelValues("duplicate")))
	require.Equal(t, 0.0, testutil.ToFloat64(b.AbortedRounds))
}

func TestHandlerExposesEngineMetrics(t *testing.T) {
	require := require.New(t)

	m := New()
	m.EmissionMicro.Add(10_000_000)
	m.IssuedSupplyMicro.Set(10_000_000)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(200, rec.Code)

	body := rec.Body.String()
	require.True(strings.Contains(body, "dlc_economy_emission_micro_total 1e+07"), body)
	require.True(strings.Contains(body, "dlc_economy_issued_supply_micro 1e+07"))
	require.True(strings.Contains(body, "go_goroutines"))
}
