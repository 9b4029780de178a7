package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"github.com/appforge-ai/appforge-backend/internal/services/credits"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/subscription"
	"github.com/stripe/stripe-go/v81/webhook"
	"gorm.io/gorm"
)

var (
	ErrUnknownPlan    = errors.New("unknown subscription plan")
	ErrNoSubscription = errors.New("user has no active subscription")
)

// EventLog deduplicates webhook deliveries and applies plan allowances to the
// durable ledger.
type EventLog interface {
	RecordBillingEvent(ctx context.Context, eventID, eventType, userID string) (bool, error)
	SetBalance(ctx context.Context, userID string, balance int64, details string) (*models.UserCredit, error)
}

// Granter is the coordinator surface billing needs
type Granter interface {
	GrantCredits(ctx context.Context, params credits.GrantParams) (*models.GrantResult, error)
	InvalidateCache(ctx context.Context, userID string) error
}

// Service owns the Stripe integration: checkout sessions, subscription
// lifecycle webhooks, and the credit grants they trigger.
type Service struct {
	db            *gorm.DB
	events        EventLog
	granter       Granter
	webhookSecret string
	clientURL     string
	prices        map[string]string
}

func NewService(cfg *models.BillingConfig, db *gorm.DB, events EventLog, granter Granter, clientURL string) *Service {
	stripe.Key = cfg.SecretKey

	return &Service{
		db:            db,
		events:        events,
		granter:       granter,
		webhookSecret: cfg.WebhookSecret,
		clientURL:     clientURL,
		prices:        cfg.Prices,
	}
}

// priceFor returns the Stripe price ID configured for a plan
func (s *Service) priceFor(planID models.SubscriptionPlanID) (string, bool) {
	priceID, ok := s.prices[string(planID)]
	return priceID, ok && priceID != ""
}

// planForPrice is the reverse lookup used when a webhook reports a price ID
func (s *Service) planForPrice(priceID string) (Plan, bool) {
	for id, price := range s.prices {
		if price == priceID {
			return PlanByID(models.SubscriptionPlanID(id))
		}
	}
	return Plan{}, false
}

// CreateCheckoutSession starts a Stripe subscription checkout for a plan
func (s *Service) CreateCheckoutSession(ctx context.Context, user *models.User, planID models.SubscriptionPlanID) (*stripe.CheckoutSession, error) {
	if _, ok := PlanByID(planID); !ok || planID == models.PlanFree {
		return nil, ErrUnknownPlan
	}

	priceID, ok := s.priceFor(planID)
	if !ok {
		return nil, fmt.Errorf("%w: no price configured for %s", ErrUnknownPlan, planID)
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.clientURL + "/billing?status=success"),
		CancelURL:  stripe.String(s.clientURL + "/billing?status=cancelled"),
		Metadata: map[string]string{
			"user_id": user.ID,
			"plan":    string(planID),
		},
	}

	if user.StripeCustomerID != "" {
		sessionParams.Customer = stripe.String(user.StripeCustomerID)
	} else if user.Email != "" {
		sessionParams.CustomerEmail = stripe.String(user.Email)
	}

	sessionParams.Params.Context = ctx

	sess, err := session.New(sessionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return sess, nil
}

// CancelSubscription flags the user's subscription to end at the period
// boundary. Credits already granted for the current period are kept.
func (s *Service) CancelSubscription(ctx context.Context, user *models.User) error {
	if user.StripeSubscriptionID == "" {
		return ErrNoSubscription
	}

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Params.Context = ctx

	if _, err := subscription.Update(user.StripeSubscriptionID, params); err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}

	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("cancel_at_period_end", true).Error
}

// HandleWebhook verifies and processes a Stripe webhook delivery. Every
// credit-granting event passes the dedup gate first, so Stripe retries can
// never double-grant.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return fmt.Errorf("failed to verify webhook signature: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event)
	case "invoice.payment_succeeded":
		return s.handleInvoicePaid(ctx, event)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_failed":
		return s.handlePaymentFailed(ctx, event)
	default:
		// Ignore other event types
		return nil
	}
}

// handleCheckoutCompleted activates the purchased plan and grants its
// allowance
func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}
	return s.activateCheckout(ctx, &sess, string(event.Type))
}

// VerifyCheckoutSession activates a paid checkout session on behalf of the
// client, covering the window before the webhook delivery lands. Activation
// is keyed on the session ID, so whichever path runs second is a no-op.
func (s *Service) VerifyCheckoutSession(ctx context.Context, user *models.User, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("session id is required")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Params.Context = ctx

	sess, err := session.Get(sessionID, params)
	if err != nil {
		return false, fmt.Errorf("failed to load checkout session: %w", err)
	}
	if sess.Metadata["user_id"] != user.ID {
		return false, fmt.Errorf("checkout session %s belongs to another user", sess.ID)
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return false, nil
	}

	if err := s.activateCheckout(ctx, sess, "checkout.session.verified"); err != nil {
		return false, err
	}
	return true, nil
}

// activateCheckout applies a completed checkout: plan activation plus the
// allowance grant, deduplicated on the session ID across the webhook and the
// client verify path.
func (s *Service) activateCheckout(ctx context.Context, sess *stripe.CheckoutSession, source string) error {
	userID := sess.Metadata["user_id"]
	planID := models.SubscriptionPlanID(sess.Metadata["plan"])
	if userID == "" {
		return fmt.Errorf("checkout session %s has no user_id metadata", sess.ID)
	}

	plan, ok := PlanByID(planID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}

	fresh, err := s.events.RecordBillingEvent(ctx, "checkout:"+sess.ID, source, userID)
	if err != nil {
		return err
	}
	if !fresh {
		fiberlog.Infof("skipping already activated checkout session %s", sess.ID)
		return nil
	}

	updates := map[string]any{
		"is_premium": true,
		"plan":       planID,
	}
	if sess.Customer != nil {
		updates["stripe_customer_id"] = sess.Customer.ID
	}
	if sess.Subscription != nil {
		updates["stripe_subscription_id"] = sess.Subscription.ID
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update user subscription: %w", err)
	}

	_, err = s.granter.GrantCredits(ctx, credits.GrantParams{
		UserID:  userID,
		Amount:  plan.Credits,
		Kind:    models.CreditTransactionPurchase,
		Details: fmt.Sprintf("%s plan purchase", plan.Name),
	})
	if err != nil {
		return fmt.Errorf("failed to grant plan credits: %w", err)
	}

	fiberlog.Infof("activated %s plan for user %s (%d credits)", plan.Name, userID, plan.Credits)
	return nil
}

// handleInvoicePaid resets the allowance at the start of each billing cycle.
// The first invoice of a subscription is already covered by checkout
// completion, so only subscription_cycle invoices reset.
func (s *Service) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to parse invoice: %w", err)
	}

	if invoice.BillingReason != stripe.InvoiceBillingReasonSubscriptionCycle {
		return nil
	}
	if invoice.Customer == nil {
		return fmt.Errorf("invoice %s has no customer", invoice.ID)
	}

	user, err := s.userByCustomer(ctx, invoice.Customer.ID)
	if err != nil {
		return err
	}

	plan, ok := PlanByID(user.Plan)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlan, user.Plan)
	}

	fresh, err := s.events.RecordBillingEvent(ctx, event.ID, string(event.Type), user.ID)
	if err != nil {
		return err
	}
	if !fresh {
		fiberlog.Infof("skipping already processed billing event %s", event.ID)
		return nil
	}

	// Renewal replaces the leftover balance with the new period's allowance
	if _, err := s.events.SetBalance(ctx, user.ID, plan.Credits, fmt.Sprintf("%s plan renewal", plan.Name)); err != nil {
		return fmt.Errorf("failed to reset plan allowance: %w", err)
	}
	if err := s.granter.InvalidateCache(ctx, user.ID); err != nil {
		fiberlog.Warnf("failed to invalidate cached balance for user %s: %v", user.ID, err)
	}

	fiberlog.Infof("renewed %s plan for user %s", plan.Name, user.ID)
	return nil
}

// handleSubscriptionUpdated mirrors plan and period changes onto the user
func (s *Service) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}
	if sub.Customer == nil {
		return fmt.Errorf("subscription %s has no customer", sub.ID)
	}

	user, err := s.userByCustomer(ctx, sub.Customer.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Subscription created before checkout completion lands; the
			// completion handler will attach it
			return nil
		}
		return err
	}

	updates := map[string]any{
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodStart > 0 {
		updates["current_period_start"] = unixTime(sub.CurrentPeriodStart)
	}
	if sub.CurrentPeriodEnd > 0 {
		updates["current_period_end"] = unixTime(sub.CurrentPeriodEnd)
	}

	if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		if plan, ok := s.planForPrice(sub.Items.Data[0].Price.ID); ok && plan.ID != user.Plan {
			updates["plan"] = plan.ID
			fiberlog.Infof("user %s moved to %s plan", user.ID, plan.Name)
		}
	}

	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(updates).Error
}

// handleSubscriptionDeleted downgrades the user to the free plan. The
// remaining balance is left alone; it just stops renewing.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}
	if sub.Customer == nil {
		return fmt.Errorf("subscription %s has no customer", sub.ID)
	}

	user, err := s.userByCustomer(ctx, sub.Customer.ID)
	if err != nil {
		return err
	}

	fiberlog.Infof("subscription ended for user %s, downgrading to free plan", user.ID)

	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"is_premium":             false,
			"plan":                   models.PlanFree,
			"stripe_subscription_id": "",
			"cancel_at_period_end":   false,
		}).Error
}

// handlePaymentFailed only logs; Stripe retries the charge and emits
// subscription.deleted if it gives up
func (s *Service) handlePaymentFailed(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to parse invoice: %w", err)
	}

	customerID := ""
	if invoice.Customer != nil {
		customerID = invoice.Customer.ID
	}
	fiberlog.Warnf("payment failed for customer %s (invoice %s)", customerID, invoice.ID)
	return nil
}

func unixTime(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

func (s *Service) userByCustomer(ctx context.Context, customerID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("stripe_customer_id = ?", customerID).
		First(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find user for customer %s: %w", customerID, err)
	}
	return &user, nil
}
