package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DEAL_FEE_BPS", "")
	t.Setenv("DB_DRIVER", "")
	cfg := Load()
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, int64(500), cfg.Deal.FeeBps)
	assert.Equal(t, "KES", cfg.Deal.Currency)
	assert.Equal(t, 30*time.Minute, cfg.Payment.PaymentExpiry)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DEAL_FEE_BPS", "250")
	t.Setenv("CODE_RATE_LIMIT", "not-a-number")
	cfg := Load()
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, int64(250), cfg.Deal.FeeBps)
	assert.Equal(t, 10, cfg.Server.CodeRateLimit)
}
