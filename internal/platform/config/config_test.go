package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "log", cfg.Mail.Transport)
	assert.Equal(t, 3, cfg.Delivery.MaxRetries)
	assert.Equal(t, time.Second, cfg.Delivery.BackoffBase)
	assert.Equal(t, 5*time.Minute, cfg.Delivery.BackoffMax)
	assert.Equal(t, 5*time.Second, cfg.Delivery.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Delivery.SendTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Delivery.ClaimTimeout)
	assert.Equal(t, "agreement.notifications", cfg.Kafka.NotificationsTopic)
	assert.Empty(t, cfg.Mail.AlertRecipients)
	assert.Equal(t, 60, cfg.RateLimit.Writes)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("MAIL_TRANSPORT", "smtp")
	t.Setenv("ALERT_RECIPIENTS", "ops@usmax.com, legal@usmax.com")
	t.Setenv("DELIVERY_SEND_TIMEOUT", "5s")
	t.Setenv("DELIVERY_MAX_RETRIES", "5")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "smtp", cfg.Mail.Transport)
	assert.Equal(t, []string{"ops@usmax.com", "legal@usmax.com"}, cfg.Mail.AlertRecipients)
	assert.Equal(t, 5*time.Second, cfg.Delivery.SendTimeout)
	assert.Equal(t, 5, cfg.Delivery.MaxRetries)
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("DELIVERY_POLL_INTERVAL", "soon")
		_, err := FromEnv()
		assert.ErrorContains(t, err, "DELIVERY_POLL_INTERVAL")
	})

	t.Run("unknown transport", func(t *testing.T) {
		t.Setenv("MAIL_TRANSPORT", "carrier-pigeon")
		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("kafka sink without brokers", func(t *testing.T) {
		t.Setenv("NOTIFY_SINK", "kafka")
		_, err := FromEnv()
		assert.ErrorContains(t, err, "KAFKA_BROKERS")
	})

	t.Run("negative rate limit", func(t *testing.T) {
		t.Setenv("RATE_LIMIT_WRITES", "-1")
		_, err := FromEnv()
		assert.ErrorContains(t, err, "RATE_LIMIT_WRITES")
	})

	t.Run("non-positive expiration interval", func(t *testing.T) {
		for _, v := range []string{"0s", "-5m"} {
			t.Setenv("EXPIRATION_INTERVAL", v)
			_, err := FromEnv()
			assert.ErrorContains(t, err, "EXPIRATION_INTERVAL", v)
		}
	})
}
