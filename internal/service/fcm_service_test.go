package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushDataStringifiesValues(t *testing.T) {
	got := pushData("PAYMENT_ESCROWED", map[string]interface{}{
		"conversation_id": uint(42),
		"net_amount":      int64(190000),
		"remaining":       3,
		"reference":       "ord-1",
		"flags":           []string{"a"},
	})
	assert.Equal(t, map[string]string{
		"type":            "PAYMENT_ESCROWED",
		"conversation_id": "42",
		"net_amount":      "190000",
		"remaining":       "3",
		"reference":       "ord-1",
		"flags":           `["a"]`,
	}, got)
}

func TestNilFCMServiceIsANoop(t *testing.T) {
	var s *FCMService
	assert.NoError(t, s.SendToUser(context.Background(), "token", "X", "t", "b", nil))
	assert.Nil(t, NewFCMService(""))
}
