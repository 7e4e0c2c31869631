package meter

import "github.com/ineyio/imgguard"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ imgguard.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnRoute(imgguard.RouteEvent)       {}
func (m *NoopMeter) OnQuotaDenied(imgguard.QuotaEvent) {}
func (m *NoopMeter) OnResult(imgguard.ResultEvent)     {}

// Multi fans every event out to each meter in order.
type Multi []imgguard.Meter

var _ imgguard.Meter = Multi(nil)

func (m Multi) OnRoute(e imgguard.RouteEvent) {
	for _, mt := range m {
		mt.OnRoute(e)
	}
}

func (m Multi) OnQuotaDenied(e imgguard.QuotaEvent) {
	for _, mt := range m {
		mt.OnQuotaDenied(e)
	}
}

func (m Multi) OnResult(e imgguard.ResultEvent) {
	for _, mt := range m {
		mt.OnResult(e)
	}
}
