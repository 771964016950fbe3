package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// GatewayProvider opens hosted checkouts on the card gateway's merchant API.
type GatewayProvider struct {
	BaseURL     string
	Email       string
	Password    string
	WebhookBase string
	client      *http.Client
}

func NewGatewayProvider(baseURL, email, password, webhookBase string) *GatewayProvider {
	if baseURL == "" {
		baseURL = "https://card-api.theliberec.com"
	}
	return &GatewayProvider{
		BaseURL:     baseURL,
		Email:       email,
		Password:    password,
		WebhookBase: webhookBase,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *GatewayProvider) Name() string { return "gateway" }

type gatewayLoginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type gatewayLoginResp struct {
	Token string `json:"token"`
}

// getToken logs in and returns a fresh token per checkout.
func (p *GatewayProvider) getToken(ctx context.Context) (string, error) {
	body, _ := json.Marshal(gatewayLoginReq{Email: p.Email, Password: p.Password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/v1/merchants/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed: %d", resp.StatusCode)
	}
	var out gatewayLoginResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

type checkoutReq struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CallbackURL   string `json:"callback_url"`
	OrderID       string `json:"order_id"`
}

type checkoutResp struct {
	UUID            string `json:"uuid"`
	OrderID         string `json:"order_id"`
	MerchantOrderID string `json:"merchant_order_id"`
	CheckoutURL     string `json:"checkout_url"`
	Status          string `json:"status"`
	ResponseCode    string `json:"response_code"`
}

func (p *GatewayProvider) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("checkout amount must be positive")
	}
	token, err := p.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("gateway login: %w", err)
	}
	orderID := req.OrderID
	if orderID == "" {
		orderID = req.IdempotencyKey
	}
	callbackURL := req.CallbackURL
	if callbackURL == "" && p.WebhookBase != "" {
		callbackURL = p.WebhookBase + "/api/v1/webhooks/payment"
	}
	// The gateway takes whole currency units; amounts below one unit round up to 1.
	amountStr := strconv.FormatInt(req.AmountCents/100, 10)
	if req.AmountCents < 100 {
		amountStr = "1"
	}
	payload := checkoutReq{
		Amount:        amountStr,
		Currency:      "KES",
		Description:   req.Description,
		CustomerEmail: req.CustomerEmail,
		CallbackURL:   callbackURL,
		OrderID:       orderID,
	}
	if req.Currency != "" {
		payload.Currency = req.Currency
	}
	body, _ := json.Marshal(payload)
	apiReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/v1/transactions/checkout", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	apiReq.Header.Set("Content-Type", "application/json")
	apiReq.Header.Set("Authorization", "Bearer "+token)
	apiReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	log.Printf("[gateway] POST %s/transactions/checkout order_id=%s conversation=%d", p.BaseURL, orderID, req.ConversationID)
	resp, err := p.client.Do(apiReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Printf("[gateway] checkout rejected status=%d body=%s", resp.StatusCode, string(respBody))
		return nil, fmt.Errorf("gateway checkout: %d", resp.StatusCode)
	}
	var out checkoutResp
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	log.Printf("[gateway] checkout opened: order_id=%s status=%s", orderID, out.Status)
	expires := req.ExpiresIn
	if expires == 0 {
		expires = 30 * time.Minute
	}
	return &CheckoutResponse{
		Reference:   orderID,
		Status:      out.Status,
		CheckoutURL: out.CheckoutURL,
		ExpiresAt:   time.Now().Add(expires),
	}, nil
}
