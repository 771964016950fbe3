package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"reference":"ord-1","status":"COMPLETED"}`)
	sig := Sign("s3cret", body)

	assert.True(t, VerifySignature("s3cret", body, sig))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("s3cret", append(body, ' '), sig))
	assert.False(t, VerifySignature("s3cret", body, ""))
}

func TestStubProviderUsesOrderID(t *testing.T) {
	p := &StubProvider{}
	resp, err := p.InitiateCheckout(context.Background(), CheckoutRequest{OrderID: "ord-42", ExpiresIn: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "ord-42", resp.Reference)
	assert.Equal(t, "PENDING", resp.Status)
}
