package tier

import "strings"

// Tier is the canonical service level. The upstream app historically used
// "Legend" and "Legendary" interchangeably; ParseTier folds both onto the
// single canonical name.
type Tier string

const (
	Standard Tier = "standard"
	Legend   Tier = "legend"
	VIP      Tier = "vip"
)

// Resource is a rate-limited resource kind. The two kinds deliberately use
// different period bucketing: responses roll over on a fixed-length window
// anchored to an epoch, premium calls on calendar months.
type Resource string

const (
	ResourceResponses    Resource = "responses"
	ResourcePremiumCalls Resource = "premium_calls"
)

// Resources lists every rate-limited resource kind.
var Resources = []Resource{ResourceResponses, ResourcePremiumCalls}

// ParseTier normalizes a stored tier name. Unknown values map to Standard,
// the most restrictive tier; callers log those as anomalous.
func ParseTier(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard", "":
		return Standard, s != ""
	case "legend", "legendary":
		return Legend, true
	case "vip":
		return VIP, true
	default:
		return Standard, false
	}
}

func (t Tier) String() string {
	return string(t)
}
