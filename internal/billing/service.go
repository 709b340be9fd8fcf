package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	billingportalsession "github.com/stripe/stripe-go/v76/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/aether-labs/aether/internal/config"
	"github.com/aether-labs/aether/internal/events"
	"github.com/aether-labs/aether/internal/tier"
	"github.com/aether-labs/aether/internal/users"
)

// CheckoutSession is returned to the client to start payment.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

// PortalSession points the client at the Stripe customer portal.
type PortalSession struct {
	URL string `json:"url"`
}

// Service handles Stripe billing. The webhook is the single source of truth
// for tier changes: nothing else writes users.tier after signup.
type Service struct {
	users     *users.Service
	cfg       config.StripeConfig
	publisher *events.Publisher
}

// NewService creates a billing Service and installs the API key.
func NewService(userSvc *users.Service, cfg config.StripeConfig, publisher *events.Publisher) *Service {
	stripe.Key = cfg.SecretKey
	return &Service{
		users:     userSvc,
		cfg:       cfg,
		publisher: publisher,
	}
}

// CreateCheckoutSession starts a subscription checkout for the target tier.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uuid.UUID, target tier.Tier) (*CheckoutSession, error) {
	priceID, err := s.priceFor(target)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.cfg.SuccessURL),
		CancelURL:  stripe.String(s.cfg.CancelURL),
		Metadata: map[string]string{
			"user_id": userID.String(),
			"tier":    string(target),
		},
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("creating checkout session: %w", err)
	}

	return &CheckoutSession{
		SessionID: sess.ID,
		URL:       sess.URL,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// CreatePortalSession opens the Stripe customer portal for the user.
func (s *Service) CreatePortalSession(ctx context.Context, userID uuid.UUID, returnURL string) (*PortalSession, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user == nil || user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return nil, fmt.Errorf("user has no billing profile")
	}
	if returnURL == "" {
		returnURL = s.cfg.SuccessURL
	}

	sess, err := billingportalsession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*user.StripeCustomerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return nil, fmt.Errorf("creating portal session: %w", err)
	}
	return &PortalSession{URL: sess.URL}, nil
}

// HandleWebhook verifies and applies a Stripe webhook event.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.cfg.WebhookSecret)
	if err != nil {
		return fmt.Errorf("verifying webhook signature: %w", err)
	}

	slog.Info("stripe webhook received", "type", event.Type)

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("unmarshaling checkout session: %w", err)
		}
		return s.applyCheckoutCompleted(ctx, sess.Metadata)

	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("unmarshaling subscription: %w", err)
		}
		return s.applySubscriptionUpdated(ctx, &sub)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("unmarshaling subscription: %w", err)
		}
		return s.applySubscriptionDeleted(ctx, &sub)

	default:
		slog.Debug("unhandled stripe event", "type", event.Type)
	}
	return nil
}

// applyCheckoutCompleted promotes the user to the tier they paid for.
func (s *Service) applyCheckoutCompleted(ctx context.Context, metadata map[string]string) error {
	userID, err := uuid.Parse(metadata["user_id"])
	if err != nil {
		return fmt.Errorf("checkout metadata missing user_id: %w", err)
	}
	target, known := tier.ParseTier(metadata["tier"])
	if !known {
		return fmt.Errorf("checkout metadata carries unknown tier %q", metadata["tier"])
	}
	return s.setTier(ctx, userID, target, "checkout completed")
}

// applySubscriptionUpdated re-derives the tier from the active price. Any
// terminal status drops the user back to standard.
func (s *Service) applySubscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	userID, found, err := s.userForCustomer(ctx, sub)
	if err != nil || !found {
		return err
	}

	switch sub.Status {
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncompleteExpired:
		return s.setTier(ctx, userID, tier.Standard, fmt.Sprintf("subscription %s", sub.Status))
	}

	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		slog.Warn("subscription update without price", "subscription_id", sub.ID)
		return nil
	}
	target, err := s.tierFor(sub.Items.Data[0].Price.ID)
	if err != nil {
		slog.Warn("subscription price not mapped to a tier", "price_id", sub.Items.Data[0].Price.ID)
		return nil
	}
	return s.setTier(ctx, userID, target, "subscription updated")
}

// applySubscriptionDeleted downgrades the user to standard.
func (s *Service) applySubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	userID, found, err := s.userForCustomer(ctx, sub)
	if err != nil || !found {
		return err
	}
	return s.setTier(ctx, userID, tier.Standard, "subscription deleted")
}

func (s *Service) setTier(ctx context.Context, userID uuid.UUID, target tier.Tier, cause string) error {
	if err := s.users.SetTier(ctx, userID, string(target)); err != nil {
		return fmt.Errorf("setting tier: %w", err)
	}
	slog.Info("tier changed", "user_id", userID, "tier", target, "cause", cause)

	s.publisher.PublishAuditEvent(ctx, events.AuditEvent{
		UserID:       userID,
		EventType:    "tier_changed",
		Severity:     "info",
		ResourceType: "user",
		ResourceID:   userID.String(),
		Details:      fmt.Sprintf("tier set to %s (%s)", target, cause),
		Timestamp:    time.Now().UTC(),
	})
	return nil
}

func (s *Service) userForCustomer(ctx context.Context, sub *stripe.Subscription) (uuid.UUID, bool, error) {
	if sub.Customer == nil || sub.Customer.ID == "" {
		slog.Warn("subscription event without customer", "subscription_id", sub.ID)
		return uuid.Nil, false, nil
	}
	user, err := s.users.GetByStripeCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("looking up customer: %w", err)
	}
	if user == nil {
		slog.Warn("subscription event for unknown customer", "customer_id", sub.Customer.ID)
		return uuid.Nil, false, nil
	}
	return user.ID, true, nil
}

func (s *Service) ensureCustomer(ctx context.Context, user *users.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	cust, err := customer.New(&stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Metadata: map[string]string{
			"user_id": user.ID.String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("creating stripe customer: %w", err)
	}

	if err := s.users.SetStripeCustomerID(ctx, user.ID, cust.ID); err != nil {
		return "", fmt.Errorf("saving stripe customer id: %w", err)
	}
	return cust.ID, nil
}

func (s *Service) priceFor(target tier.Tier) (string, error) {
	switch target {
	case tier.Legend:
		return s.cfg.PriceLegend, nil
	case tier.VIP:
		return s.cfg.PriceVIP, nil
	default:
		return "", fmt.Errorf("tier %s is not purchasable", target)
	}
}

func (s *Service) tierFor(priceID string) (tier.Tier, error) {
	switch priceID {
	case s.cfg.PriceLegend:
		return tier.Legend, nil
	case s.cfg.PriceVIP:
		return tier.VIP, nil
	default:
		return "", fmt.Errorf("unknown price %s", priceID)
	}
}
