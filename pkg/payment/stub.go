package payment

import (
	"context"
	"fmt"
	"time"
)

// StubProvider accepts every checkout without contacting a gateway. Used in
// development; completion is driven by posting a signed webhook.
type StubProvider struct{}

func (s *StubProvider) Name() string { return "stub" }

func (s *StubProvider) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	ref := req.OrderID
	if ref == "" {
		ref = fmt.Sprintf("stub_%d_%d", time.Now().UnixNano(), req.UserID)
	}
	return &CheckoutResponse{
		Reference: ref,
		Status:    "PENDING",
		ExpiresAt: time.Now().Add(req.ExpiresIn),
	}, nil
}
