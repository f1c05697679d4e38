// Package health aggregates component probes into a single snapshot: provider
// reachability, knowledge-base load state, and synthesis-chain availability.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/balizero/reasoning-gateway/internal/breaker"
	"github.com/balizero/reasoning-gateway/internal/domain"
	"github.com/balizero/reasoning-gateway/internal/knowledge"
	"github.com/balizero/reasoning-gateway/internal/router"
)

// Status is a component or aggregate health level.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// rank orders statuses for worst-of aggregation.
func rank(s Status) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

func worse(a, b Status) Status {
	if rank(b) > rank(a) {
		return b
	}
	return a
}

// Component is one probed constituent.
type Component struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Snapshot is the aggregate health report. Status is the worst status across
// Components.
type Snapshot struct {
	Status     Status      `json:"status"`
	Components []Component `json:"components"`
}

// Config assembles an Aggregator.
type Config struct {
	Providers map[string]domain.Provider
	Knowledge *knowledge.Store
	Router    *router.Router
	Breakers  *breaker.Registry
	Logger    *slog.Logger

	// SynthesisTier is the tier whose chain serves persona synthesis.
	SynthesisTier domain.Tier
	// PingTimeout bounds each provider probe.
	PingTimeout time.Duration
}

// Aggregator probes the reasoning system's constituents on demand. Probe
// failures become unhealthy entries in the snapshot; Check itself never
// fails.
type Aggregator struct {
	providers   map[string]domain.Provider
	kb          *knowledge.Store
	router      *router.Router
	breakers    *breaker.Registry
	logger      *slog.Logger
	synthTier   domain.Tier
	pingTimeout time.Duration
}

// New creates an aggregator with defaults applied.
func New(cfg Config) *Aggregator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}
	if cfg.SynthesisTier == "" {
		cfg.SynthesisTier = domain.TierEconomy
	}
	return &Aggregator{
		providers:   cfg.Providers,
		kb:          cfg.Knowledge,
		router:      cfg.Router,
		breakers:    cfg.Breakers,
		logger:      cfg.Logger,
		synthTier:   cfg.SynthesisTier,
		pingTimeout: cfg.PingTimeout,
	}
}

// Check probes every constituent and returns the aggregate snapshot.
func (a *Aggregator) Check(ctx context.Context) Snapshot {
	components := a.checkProviders(ctx)
	components = append(components, a.checkKnowledge())
	components = append(components, a.checkSynthesis())

	status := StatusHealthy
	for _, c := range components {
		status = worse(status, c.Status)
	}
	return Snapshot{Status: status, Components: components}
}

// checkProviders pings every registered adapter concurrently. A single
// failing provider degrades the component; all providers failing makes it
// unhealthy.
func (a *Aggregator) checkProviders(ctx context.Context) []Component {
	if len(a.providers) == 0 {
		return []Component{{
			Name:   "providers",
			Status: StatusUnhealthy,
			Detail: "no providers configured",
		}}
	}

	names := make([]string, 0, len(a.providers))
	for name := range a.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]Component, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string, p domain.Provider) {
			defer wg.Done()
			results[i] = a.pingOne(ctx, name, p)
		}(i, name, a.providers[name])
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Status != StatusHealthy {
			failed++
		}
	}
	summary := Component{Name: "providers", Status: StatusHealthy}
	switch {
	case failed == len(results):
		summary.Status = StatusUnhealthy
		summary.Detail = "all provider pings failed"
	case failed > 0:
		summary.Status = StatusDegraded
		summary.Detail = fmt.Sprintf("%d of %d providers unreachable", failed, len(results))
	}
	return append([]Component{summary}, results...)
}

// pingOne probes a single adapter. An adapter that panics is reported as
// unhealthy rather than taking the whole check down.
func (a *Aggregator) pingOne(ctx context.Context, name string, p domain.Provider) (c Component) {
	c = Component{Name: "provider:" + name, Status: StatusHealthy}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("provider ping panicked",
				slog.String("provider", name),
				slog.Any("panic", r))
			c.Status = StatusUnhealthy
			c.Detail = fmt.Sprintf("ping panicked: %v", r)
		}
	}()

	pingCtx, cancel := context.WithTimeout(ctx, a.pingTimeout)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		c.Status = StatusUnhealthy
		c.Detail = err.Error()
	}
	return c
}

// checkKnowledge reports the knowledge-base load state. An empty store is
// degraded, not unhealthy: calibration silently applies no corrections.
func (a *Aggregator) checkKnowledge() Component {
	if a.kb == nil || a.kb.Len() == 0 {
		return Component{
			Name:   "knowledge",
			Status: StatusDegraded,
			Detail: "no knowledge entries loaded",
		}
	}
	corrections, insights, services := a.kb.Counts()
	return Component{
		Name:   "knowledge",
		Status: StatusHealthy,
		Detail: fmt.Sprintf("%d corrections, %d insights, %d service definitions", corrections, insights, services),
	}
}

// checkSynthesis verifies the synthesis tier resolves to a chain with at
// least one breaker-available provider.
func (a *Aggregator) checkSynthesis() Component {
	chain, err := a.router.Chain(a.synthTier)
	if err != nil {
		return Component{
			Name:   "synthesis",
			Status: StatusUnhealthy,
			Detail: err.Error(),
		}
	}
	for _, id := range chain {
		if a.breakers.Available(id) {
			return Component{Name: "synthesis", Status: StatusHealthy}
		}
	}
	return Component{
		Name:   "synthesis",
		Status: StatusDegraded,
		Detail: "all synthesis providers circuit-open",
	}
}
