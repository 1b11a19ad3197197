package analytics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRangeDefaultsToLastThirtyDays(t *testing.T) {
	svc := &Service{}
	from, to, err := parseRange(httptest.NewRequest("GET", "/analytics/sales", nil), svc.defaultRange())
	require.NoError(t, err)
	require.InDelta(t, 30*24*time.Hour, to.Sub(from), float64(time.Hour))
}

func TestParseRangeHonoursConfiguredWindow(t *testing.T) {
	svc := &Service{DefaultRangeDays: 7}
	from, to, err := parseRange(httptest.NewRequest("GET", "/analytics/sales", nil), svc.defaultRange())
	require.NoError(t, err)
	require.InDelta(t, 7*24*time.Hour, to.Sub(from), float64(time.Hour))
}

func TestParseRangeExplicitBounds(t *testing.T) {
	from, to, err := parseRange(httptest.NewRequest("GET", "/analytics/sales?from=2026-08-01&to=2026-08-15", nil), 30)
	require.NoError(t, err)
	require.Equal(t, "2026-08-01", from.Format("2006-01-02"))
	require.Equal(t, "2026-08-15", to.Format("2006-01-02"))
}

func TestParseRangeRejectsGarbageAndInvertedRange(t *testing.T) {
	_, _, err := parseRange(httptest.NewRequest("GET", "/analytics/sales?from=yesterday", nil), 30)
	require.Error(t, err)

	_, _, err = parseRange(httptest.NewRequest("GET", "/analytics/sales?from=2026-08-15&to=2026-08-01", nil), 30)
	require.Error(t, err)
}
