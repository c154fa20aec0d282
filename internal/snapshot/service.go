// Package snapshot implements the Chain Snapshot Service: a cached,
// rate-limited, singleflight-coalesced fetch of on-chain token state
// (SPEC_FULL §4.3). No teacher file owns this subsystem directly — it is
// grounded in sawpanic-cryptorun's pairing of golang.org/x/time/rate with
// github.com/sony/gobreaker (both already indirect dependencies of the
// teacher's own go.mod via its gRPC/oauth2 dependency chain, promoted here
// to direct, active use) plus golang.org/x/sync/singleflight.
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/telemetry"
)

// Provider is an external data source the snapshot service fetches
// through. Each chain typically has its own provider (different RPC/API
// surface); providers are swapped per-chain in NewService.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, token domain.TokenFingerprint, plannedPositionNative domain.Optional[float64]) (domain.ChainSnapshot, error)
}

type cacheEntry struct {
	snapshot domain.ChainSnapshot
	expires  time.Time
}

// Service is the single entry point GetSnapshot callers use. One Service
// instance is shared process-wide; it owns one rate limiter and one
// circuit breaker per provider, plus one TTL cache and one singleflight
// group shared across all callers.
type Service struct {
	providers map[domain.Chain]Provider
	ttl       time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry

	limiters  map[string]*rate.Limiter
	breakers  map[string]*gobreaker.CircuitBreaker
	flight    singleflight.Group
	rps       float64
	burst     int
	log       *telemetry.Logger
	metrics   MetricsSink
}

// MetricsSink is the narrow slice of telemetry.Metrics this package needs,
// kept as an interface so snapshot doesn't import telemetry's Prometheus
// registration directly.
type MetricsSink interface {
	SnapshotFailure(provider string)
}

func NewService(ttl time.Duration, rps float64, burst int, metrics MetricsSink) *Service {
	return &Service{
		providers: make(map[domain.Chain]Provider),
		ttl:       ttl,
		cache:     make(map[string]cacheEntry),
		limiters:  make(map[string]*rate.Limiter),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		rps:       rps,
		burst:     burst,
		log:       telemetry.New("snapshot"),
		metrics:   metrics,
	}
}

// RegisterProvider binds a chain to the provider that serves it.
func (s *Service) RegisterProvider(chain domain.Chain, p Provider) {
	s.providers[chain] = p
	s.limiters[p.Name()] = rate.NewLimiter(rate.Limit(s.rps), s.burst)
	s.breakers[p.Name()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

func cacheKey(token domain.TokenFingerprint, planned domain.Optional[float64]) string {
	if v, ok := planned.Get(); ok {
		// truncate planned size to whole native units so nearby sizes
		// share a cache entry instead of each missing independently
		bucket := int64(v*100) / 100
		return fmt.Sprintf("%s|%d", token.String(), bucket)
	}
	return token.String() + "|none"
}

// GetSnapshot returns a ChainSnapshot for token, fetching through the
// registered provider for its chain if the cache is stale. Concurrent
// callers for the same key share one in-flight fetch (singleflight);
// calls to the underlying provider pass through a token-bucket rate
// limiter and a circuit breaker, per provider.
func (s *Service) GetSnapshot(ctx context.Context, token domain.TokenFingerprint, plannedPositionNative domain.Optional[float64]) (domain.ChainSnapshot, error) {
	key := cacheKey(token, plannedPositionNative)

	s.mu.Lock()
	if entry, ok := s.cache[key]; ok && time.Now().Before(entry.expires) {
		s.mu.Unlock()
		return entry.snapshot, nil
	}
	s.mu.Unlock()

	provider, ok := s.providers[token.Chain]
	if !ok {
		return domain.ChainSnapshot{Token: token, SnapshotTime: time.Now()}, fmt.Errorf("no provider registered for chain %s", token.Chain)
	}

	result, err, _ := s.flight.Do(key, func() (interface{}, error) {
		return s.fetchThroughGuards(ctx, provider, token, plannedPositionNative)
	})
	if err != nil {
		// TransientExternal or breaker-open: return an all-unknown
		// snapshot rather than propagating the error to gates/scorer.
		if s.metrics != nil {
			s.metrics.SnapshotFailure(provider.Name())
		}
		s.log.Warn("snapshot fetch failed for %s via %s: %v", token, provider.Name(), err)
		return domain.ChainSnapshot{Token: token, SnapshotTime: time.Now()}, nil
	}

	snap := result.(domain.ChainSnapshot)
	s.mu.Lock()
	s.cache[key] = cacheEntry{snapshot: snap, expires: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return snap, nil
}

func (s *Service) fetchThroughGuards(ctx context.Context, provider Provider, token domain.TokenFingerprint, planned domain.Optional[float64]) (domain.ChainSnapshot, error) {
	limiter := s.limiters[provider.Name()]
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return domain.ChainSnapshot{}, err
		}
	}

	breaker := s.breakers[provider.Name()]
	out, err := breaker.Execute(func() (interface{}, error) {
		return provider.Fetch(ctx, token, planned)
	})
	if err != nil {
		return domain.ChainSnapshot{}, err
	}
	return out.(domain.ChainSnapshot), nil
}

// InvalidateCache drops the cached entry for a token, forcing the next
// GetSnapshot to refetch regardless of TTL.
func (s *Service) InvalidateCache(token domain.TokenFingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.cache {
		if len(k) >= len(token.String()) && k[:len(token.String())] == token.String() {
			delete(s.cache, k)
		}
	}
}
