package models

type BillingConfig struct {
	SecretKey     string `json:"secret_key" yaml:"secret_key"`
	WebhookSecret string `json:"webhook_secret" yaml:"webhook_secret"`
	Currency      string `json:"currency,omitzero" yaml:"currency"`

	// Prices maps plan IDs to Stripe price IDs
	Prices map[string]string `json:"prices,omitzero" yaml:"prices"`
}
