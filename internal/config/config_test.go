// internal/config/config_test.go

package config

import "testing"

func validConfig() *Config {
	return &Config{
		Environment:       "development",
		DatabaseURL:       "postgresql://localhost:5432/tutorlink",
		RedisURL:          "redis://localhost:6379/0",
		JWTSecret:         "change-this-in-production",
		FallbackProvider:  "mock",
		MaxAttachmentSize: 1024,
	}
}

func TestValidateDevelopmentDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateProductionRejectsDefaultSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Environment = "production"
	cfg.FallbackProvider = "fcm"
	cfg.FirebaseCredentialsFile = "/etc/firebase.json"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected the default JWT secret to be rejected in production")
	}
}

func TestValidateProductionRejectsMockFallback(t *testing.T) {
	cfg := validConfig()
	cfg.Environment = "production"
	cfg.JWTSecret = "a-real-secret"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected the mock fallback provider to be rejected in production")
	}
}

func TestValidateFCMRequiresCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.FallbackProvider = "fcm"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected fcm without credentials to fail validation")
	}
}

func TestValidateSharedPresenceRequiresRedis(t *testing.T) {
	cfg := validConfig()
	cfg.SharedPresence = true
	cfg.RedisURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected shared presence without Redis to fail validation")
	}
}

func TestIsProduction(t *testing.T) {
	cfg := validConfig()
	if cfg.IsProduction() {
		t.Error("development config reported as production")
	}
	cfg.Environment = "production"
	if !cfg.IsProduction() {
		t.Error("production config not reported as production")
	}
}
