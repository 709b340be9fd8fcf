package users

import (
	"time"

	"github.com/google/uuid"
)

// User is an Aether account. Tier is the canonical service level string
// ("standard", "legend", "vip") and is only mutated through SetTier, which
// the billing webhook drives.
type User struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	DisplayName      string    `json:"display_name"`
	Tier             string    `json:"tier"`
	StripeCustomerID *string   `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
