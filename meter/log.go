package meter

import (
	"go.uber.org/zap"

	"github.com/ineyio/imgguard"
)

// LogMeter logs moderation events using zap.
type LogMeter struct {
	Logger *zap.Logger
}

var _ imgguard.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, zap.L() is used.
func NewLogMeter(logger *zap.Logger) *LogMeter {
	if logger == nil {
		logger = zap.L()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnRoute(e imgguard.RouteEvent) {
	m.Logger.Info("route",
		zap.String("request_id", e.RequestID),
		zap.String("provider", e.Provider),
		zap.String("image_url", e.ImageURL),
		zap.Bool("requested", e.Requested),
		zap.Int("attempt", e.AttemptNum),
	)
}

func (m *LogMeter) OnQuotaDenied(e imgguard.QuotaEvent) {
	m.Logger.Info("quota_denied",
		zap.String("request_id", e.RequestID),
		zap.String("provider", e.Provider),
		zap.String("period", string(e.Period)),
		zap.Int64("count", e.Count),
		zap.Int64("limit", e.Limit),
	)
}

func (m *LogMeter) OnResult(e imgguard.ResultEvent) {
	if !e.Success {
		m.Logger.Warn("result_error",
			zap.String("request_id", e.RequestID),
			zap.String("provider", e.Provider),
			zap.String("image_url", e.ImageURL),
			zap.Int64("duration_ms", e.Duration.Milliseconds()),
			zap.String("kind", string(imgguard.KindOf(e.Error))),
			zap.Error(e.Error),
		)
		return
	}

	m.Logger.Info("result",
		zap.String("request_id", e.RequestID),
		zap.String("provider", e.Provider),
		zap.String("image_url", e.ImageURL),
		zap.Int64("duration_ms", e.Duration.Milliseconds()),
		zap.Bool("safe", e.Verdict.IsSafe),
		zap.String("reason", string(e.Verdict.Reason)),
		zap.Float64("score", e.Verdict.Score),
	)
	if e.UsageErr != nil {
		m.Logger.Error("record_usage_failed",
			zap.String("request_id", e.RequestID),
			zap.String("provider", e.Provider),
			zap.Error(e.UsageErr),
		)
	}
}
