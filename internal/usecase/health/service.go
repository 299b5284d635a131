package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names as reported in Report.Checks.
const (
	ComponentEmbedding = "embedding"
	ComponentCache     = "cache"
	ComponentIndex     = "index"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// DefaultTimeout bounds each remote check.
const DefaultTimeout = 2 * time.Second

// Service coordinates health checks.
type Service struct {
	embedding EmbeddingChecker
	cache     CachePinger
	index     IndexChecker
	timeout   time.Duration
}

// New creates a Service. Any checker can be nil and is then not reported.
func New(embedding EmbeddingChecker, cache CachePinger, index IndexChecker) *Service {
	return &Service{embedding: embedding, cache: cache, index: index, timeout: DefaultTimeout}
}

// WithTimeout returns a copy whose remote checks give up after d.
func (s *Service) WithTimeout(d time.Duration) *Service {
	cp := *s
	if d > 0 {
		cp.timeout = d
	}
	return &cp
}

// Check runs the remote checks concurrently, each bounded by the service
// timeout, and reports the index state. A check that times out counts as an error.
func (s *Service) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult, 3)
	)
	run := func(component string, check func(context.Context) error) {
		wg.Go(func() {
			res := result(check(ctx) == nil)
			mu.Lock()
			checks[component] = res
			mu.Unlock()
		})
	}

	if s.embedding != nil {
		run(ComponentEmbedding, s.embedding.HealthCheck)
	}
	if s.cache != nil {
		run(ComponentCache, s.cache.Ping)
	}
	wg.Wait()

	if s.index != nil {
		checks[ComponentIndex] = result(s.index.Ready())
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	return Report{Status: status, Checks: checks}
}

func result(ok bool) CheckResult {
	if ok {
		return CheckOK
	}
	return CheckError
}
