package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestInitDefaults(t *testing.T) {
	viper.Reset()
	Init()
	cfg := Get()

	if cfg.App.Name != "signup-service" {
		t.Errorf("Expected app name signup-service, got %s", cfg.App.Name)
	}
	if cfg.SignUp.MaxRetries != 20 {
		t.Errorf("Expected 20 sign-up retries, got %d", cfg.SignUp.MaxRetries)
	}
	if cfg.Queue.Type != "database" {
		t.Errorf("Expected database queue by default, got %s", cfg.Queue.Type)
	}
	if cfg.Queue.PollInterval() != 250*time.Millisecond {
		t.Errorf("Expected 250ms poll interval, got %s", cfg.Queue.PollInterval())
	}
	if cfg.SignUp.BackoffMax() != 50*time.Millisecond {
		t.Errorf("Expected 50ms backoff cap, got %s", cfg.SignUp.BackoffMax())
	}
}

func TestInitOverride(t *testing.T) {
	viper.Reset()
	viper.Set("database.driver", "sqlite")
	viper.Set("queue.workers", 9)
	Init()

	if Get().Database.Driver != "sqlite" {
		t.Errorf("Expected sqlite driver, got %s", Get().Database.Driver)
	}
	if Get().Queue.Workers != 9 {
		t.Errorf("Expected 9 workers, got %d", Get().Queue.Workers)
	}
	viper.Reset()
}
