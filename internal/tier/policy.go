package tier

import (
	"github.com/aether-labs/aether/internal/config"
)

// Limit is the per-period allowance for one (tier, resource) pair.
type Limit struct {
	N         int
	Unlimited bool
}

// Policy is the immutable tier policy table plus period configuration.
type Policy struct {
	limits             map[Tier]map[Resource]Limit
	ResponsePeriodDays int
}

// DefaultPolicy returns the built-in tier policy table.
func DefaultPolicy() *Policy {
	return &Policy{
		limits: map[Tier]map[Resource]Limit{
			Standard: {
				ResourceResponses:    {N: 150},
				ResourcePremiumCalls: {N: 10},
			},
			Legend: {
				ResourceResponses:    {N: 500},
				ResourcePremiumCalls: {N: 50},
			},
			VIP: {
				ResourceResponses:    {Unlimited: true},
				ResourcePremiumCalls: {N: 200},
			},
		},
		ResponsePeriodDays: 14,
	}
}

// PolicyFromConfig builds the policy table with config overrides applied on
// top of the defaults. Zero values keep the default.
func PolicyFromConfig(cfg config.UsageConfig) *Policy {
	p := DefaultPolicy()
	if cfg.ResponsePeriodDays > 0 {
		p.ResponsePeriodDays = cfg.ResponsePeriodDays
	}
	override := func(t Tier, r Resource, n int) {
		if n > 0 {
			p.limits[t][r] = Limit{N: n}
		}
	}
	override(Standard, ResourceResponses, cfg.StandardResponses)
	override(Legend, ResourceResponses, cfg.LegendResponses)
	override(Standard, ResourcePremiumCalls, cfg.StandardPremium)
	override(Legend, ResourcePremiumCalls, cfg.LegendPremium)
	override(VIP, ResourcePremiumCalls, cfg.VIPPremium)
	return p
}

// LimitFor returns the allowance for the given tier and resource. Unknown
// tiers fall back to Standard (fail-closed).
func (p *Policy) LimitFor(t Tier, r Resource) Limit {
	byResource, ok := p.limits[t]
	if !ok {
		byResource = p.limits[Standard]
	}
	return byResource[r]
}
