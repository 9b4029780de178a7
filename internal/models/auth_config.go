package models

type AuthConfig struct {
	Provider    string           `json:"provider" yaml:"provider"`
	JWTConfig   *JWTAuthConfig   `json:"jwt,omitempty" yaml:"jwt,omitempty"`
	ClerkConfig *ClerkAuthConfig `json:"clerk,omitempty" yaml:"clerk,omitempty"`
}

type JWTAuthConfig struct {
	Secret     string `json:"secret" yaml:"secret"`
	CookieName string `json:"cookie_name,omitzero" yaml:"cookie_name"`
	TTLHours   int    `json:"ttl_hours,omitzero" yaml:"ttl_hours"`
}

type ClerkAuthConfig struct {
	SecretKey     string `json:"secret_key" yaml:"secret_key"`
	WebhookSecret string `json:"webhook_secret" yaml:"webhook_secret"`
}
