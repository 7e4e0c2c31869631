package meter_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ineyio/imgguard"
	"github.com/ineyio/imgguard/meter"
)

func unsafeResult() imgguard.ResultEvent {
	return imgguard.ResultEvent{
		RequestID: "req-1",
		Provider:  "sightengine",
		ImageURL:  "https://example.com/a.jpg",
		Success:   true,
		Duration:  120 * time.Millisecond,
		Verdict:   imgguard.Verdict{IsSafe: false, Reason: imgguard.ReasonGore, Score: 0.8},
	}
}

func TestLogMeter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := meter.NewLogMeter(zap.New(core))

	m.OnRoute(imgguard.RouteEvent{RequestID: "req-1", Provider: "sightengine", AttemptNum: 1})
	m.OnQuotaDenied(imgguard.QuotaEvent{RequestID: "req-1", Provider: "rekognition", Period: imgguard.PeriodDay, Count: 150, Limit: 150})

	res := unsafeResult()
	res.UsageErr = errors.New("ledger down")
	m.OnResult(res)

	m.OnResult(imgguard.ResultEvent{
		RequestID: "req-2",
		Provider:  "rekognition",
		Error:     fmt.Errorf("%w: status 404", imgguard.ErrImageNotFound),
	})

	entries := logs.All()
	require.Len(t, entries, 5)

	assert.Equal(t, "route", entries[0].Message)
	assert.Equal(t, "quota_denied", entries[1].Message)
	assert.Equal(t, "day", entries[1].ContextMap()["period"])

	assert.Equal(t, "result", entries[2].Message)
	assert.Equal(t, "gore", entries[2].ContextMap()["reason"])
	assert.Equal(t, int64(120), entries[2].ContextMap()["duration_ms"])

	assert.Equal(t, "record_usage_failed", entries[3].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)

	assert.Equal(t, "result_error", entries[4].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[4].Level)
	assert.Equal(t, "image_not_found", entries[4].ContextMap()["kind"])
}

func TestPrometheusMeter(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m, err := meter.NewPrometheusMeter("imgguard", reg)
	require.NoError(t, err)

	m.OnRoute(imgguard.RouteEvent{Provider: "sightengine"})
	m.OnRoute(imgguard.RouteEvent{Provider: "rekognition", Requested: true})
	m.OnQuotaDenied(imgguard.QuotaEvent{Provider: "sightengine", Period: imgguard.PeriodMonth})
	m.OnResult(unsafeResult())
	m.OnResult(imgguard.ResultEvent{Provider: "rekognition", Error: imgguard.ErrRateLimited})

	withUsageErr := unsafeResult()
	withUsageErr.UsageErr = errors.New("ledger down")
	m.OnResult(withUsageErr)

	expected := `
# HELP imgguard_routes_total Provider selections, by provider and whether the caller named it.
# TYPE imgguard_routes_total counter
imgguard_routes_total{provider="rekognition",requested="true"} 1
imgguard_routes_total{provider="sightengine",requested="false"} 1
# HELP imgguard_quota_denials_total Providers skipped or rejected by the local quota, by exhausted period.
# TYPE imgguard_quota_denials_total counter
imgguard_quota_denials_total{period="month",provider="sightengine"} 1
# HELP imgguard_provider_results_total Provider invocations, by outcome and error kind.
# TYPE imgguard_provider_results_total counter
imgguard_provider_results_total{kind="none",outcome="success",provider="sightengine"} 2
imgguard_provider_results_total{kind="rate_limit",outcome="error",provider="rekognition"} 1
# HELP imgguard_verdicts_total Verdicts produced, by reason.
# TYPE imgguard_verdicts_total counter
imgguard_verdicts_total{provider="sightengine",reason="gore"} 2
# HELP imgguard_usage_record_errors_total Verdicts whose usage could not be recorded.
# TYPE imgguard_usage_record_errors_total counter
imgguard_usage_record_errors_total{provider="sightengine"} 1
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"imgguard_routes_total",
		"imgguard_quota_denials_total",
		"imgguard_provider_results_total",
		"imgguard_verdicts_total",
		"imgguard_usage_record_errors_total",
	)
	assert.NoError(t, err)
	n, err := testutil.GatherAndCount(reg, "imgguard_provider_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = meter.NewPrometheusMeter("imgguard", reg)
	assert.Error(t, err, "registering twice must fail")
}

type countingMeter struct{ routes, denials, results int }

func (c *countingMeter) OnRoute(imgguard.RouteEvent)       { c.routes++ }
func (c *countingMeter) OnQuotaDenied(imgguard.QuotaEvent) { c.denials++ }
func (c *countingMeter) OnResult(imgguard.ResultEvent)     { c.results++ }

func TestMulti(t *testing.T) {
	a, b := &countingMeter{}, &countingMeter{}
	m := meter.Multi{a, &meter.NoopMeter{}, b}

	m.OnRoute(imgguard.RouteEvent{})
	m.OnQuotaDenied(imgguard.QuotaEvent{})
	m.OnQuotaDenied(imgguard.QuotaEvent{})
	m.OnResult(imgguard.ResultEvent{})

	for _, c := range []*countingMeter{a, b} {
		assert.Equal(t, 1, c.routes)
		assert.Equal(t, 2, c.denials)
		assert.Equal(t, 1, c.results)
	}
}
