package globalsdk

import (
	"time"

	"github.com/HyphaGroup/eventsync/internal/metrics"
)

// Foreground tells the SDK the process is active again. When the current
// attempt has been silent for at least the heartbeat timeout it is cancelled
// so the supervisor reconnects immediately after the reconnect delay.
// Returns true when a reconnect was triggered.
func (s *SDK) Foreground() bool {
	attempt := s.sup.Current()
	if attempt == nil || attempt.Done() {
		return false
	}
	if time.Since(attempt.LastEventAt()) < s.timing.HeartbeatTimeout {
		return false
	}

	attempt.Cancel()
	metrics.VisibilityReconnects.Inc()
	s.log.Debug("reconnecting after foreground", "attempt_id", attempt.ID, "url", s.URL())
	return true
}
