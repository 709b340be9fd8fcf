package tier

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Denial reasons returned in Decision.Reason.
const (
	ReasonPeriodLimit = "period_limit_reached"
	ReasonUnavailable = "usage_unavailable"
)

// UsageRecord matches the usage_records table schema: one row per user per
// resource. PeriodCount resets when the period key rolls over; TotalCount
// only ever grows.
type UsageRecord struct {
	UserID      uuid.UUID `json:"user_id"`
	Resource    Resource  `json:"resource"`
	PeriodKey   string    `json:"period_key"`
	PeriodCount int       `json:"period_count"`
	TotalCount  int64     `json:"total_count"`
	LastReset   time.Time `json:"last_reset"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UsageInfo is the API-facing usage snapshot for one resource.
type UsageInfo struct {
	Tier        Tier      `json:"tier"`
	Resource    Resource  `json:"resource"`
	Limit       int       `json:"limit"`
	Used        int       `json:"used"`
	Remaining   int       `json:"remaining"`
	Unlimited   bool      `json:"unlimited"`
	TotalCount  int64     `json:"total_count"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// Decision is the outcome of a consumption attempt. Denials are normal
// return values, not errors.
type Decision struct {
	Allowed bool       `json:"allowed"`
	Reason  string     `json:"reason,omitempty"`
	Usage   *UsageInfo `json:"usage,omitempty"`
}

// QuotaError wraps a caller's quota sentinel together with the usage
// snapshot from the denying Decision, so the HTTP layer can render
// remaining-quota metadata in the denial body.
type QuotaError struct {
	Usage *UsageInfo
	Err   error
}

func (e *QuotaError) Error() string { return e.Err.Error() }

func (e *QuotaError) Unwrap() error { return e.Err }

// UsagePayload extracts the usage snapshot from a quota denial. It
// returns an untyped nil when the error carries none, so response
// encoders can omit the field entirely.
func UsagePayload(err error) any {
	var qe *QuotaError
	if errors.As(err, &qe) && qe.Usage != nil {
		return qe.Usage
	}
	return nil
}
