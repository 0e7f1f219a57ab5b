package request_tracking

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long an unused session limiter is kept before pruning.
const idleLimiterTTL = 30 * time.Minute

type sessionLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Service throttles chat turns per session with a token bucket.
type Service struct {
	perMinute int
	burst     int

	mu        sync.Mutex
	limiters  map[string]*sessionLimiter
	lastPrune time.Time
	now       func() time.Time

	throttled prometheus.Counter
}

// NewService creates a throttle allowing perMinute turns per session with the given burst.
// perMinute <= 0 disables throttling. reg may be nil.
func NewService(perMinute, burst int, reg prometheus.Registerer) *Service {
	if burst <= 0 {
		burst = 1
	}

	s := &Service{
		perMinute: perMinute,
		burst:     burst,
		limiters:  make(map[string]*sessionLimiter),
		now:       time.Now,
	}

	if reg != nil {
		s.throttled = promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "chat_throttled_total",
			Help:      "Chat turns rejected by the per-session throttle.",
		})
	}

	return s
}

func (s *Service) Enabled() bool {
	return s.perMinute > 0
}

// Limit returns the configured turns per minute.
func (s *Service) Limit() int {
	return s.perMinute
}

// Allow consumes one turn for the session. When the bucket is empty it reports
// false and the time at which the next turn will be accepted.
func (s *Service) Allow(sessionID string) (bool, time.Time) {
	if !s.Enabled() {
		return true, time.Time{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	entry, ok := s.limiters[sessionID]
	if !ok {
		entry = &sessionLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMinute)), s.burst)}
		s.limiters[sessionID] = entry
	}
	entry.lastSeen = now

	reservation := entry.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if delay == 0 {
		return true, time.Time{}
	}

	// Give the token back so a rejected turn does not extend the wait.
	reservation.CancelAt(now)
	if s.throttled != nil {
		s.throttled.Inc()
	}
	return false, now.Add(delay)
}

func (s *Service) pruneLocked(now time.Time) {
	if now.Sub(s.lastPrune) < idleLimiterTTL {
		return
	}
	s.lastPrune = now

	for id, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > idleLimiterTTL {
			delete(s.limiters, id)
		}
	}
}
