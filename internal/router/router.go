// Package router resolves a request's tier to an ordered fallback chain of
// provider identifiers, consulting circuit breaker state.
package router

import (
	"fmt"

	"github.com/balizero/reasoning-gateway/internal/breaker"
	"github.com/balizero/reasoning-gateway/internal/config"
	"github.com/balizero/reasoning-gateway/internal/domain"
)

// Router maps tiers to provider chains. Chains are computed per request:
// they are cheap to build and must reflect current breaker state.
type Router struct {
	chains   map[domain.Tier][]string
	breakers *breaker.Registry
}

// New creates a router from the tier configuration.
func New(tiers config.TiersConfig, breakers *breaker.Registry) *Router {
	return &Router{
		chains: map[domain.Tier][]string{
			domain.TierPremium:    tiers.Premium,
			domain.TierBalanced:   tiers.Balanced,
			domain.TierEconomy:    tiers.Economy,
			domain.TierLastResort: tiers.LastResort,
		},
		breakers: breakers,
	}
}

// Chain returns the fallback chain for a tier: the declared list,
// de-duplicated, filtered through breaker availability in priority order.
// If filtering would empty the chain entirely, the unfiltered list is
// returned instead - breakers are advisory, and a system where every breaker
// opened at once must still attempt rather than lock out all traffic.
func (r *Router) Chain(tier domain.Tier) ([]string, error) {
	declared, ok := r.chains[tier]
	if !ok || len(declared) == 0 {
		return nil, fmt.Errorf("no providers configured for tier %s", tier)
	}

	full := dedupe(declared)

	available := make([]string, 0, len(full))
	for _, id := range full {
		if r.breakers.Available(id) {
			available = append(available, id)
		}
	}
	if len(available) == 0 {
		return full, nil
	}
	return available, nil
}

// dedupe removes repeated identifiers, keeping the first occurrence. A
// provider can appear in several logical roles within one tier declaration;
// only its highest-priority position matters.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
