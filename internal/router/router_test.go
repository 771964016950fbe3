package router_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"parcelhop/config"
	"parcelhop/internal/auth"
	"parcelhop/internal/domain"
	"parcelhop/internal/envelope"
	"parcelhop/internal/models"
	"parcelhop/internal/router"
	"parcelhop/internal/testutil"
	"parcelhop/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const webhookSecret = "whsec-test"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "test", CodeRateLimit: 50},
		JWT:    config.JWTConfig{AccessSecret: "test-secret", AccessExpiry: time.Hour, Issuer: "parcelhop"},
		Deal:   config.DealConfig{Currency: "KES", FeeBps: 500, CodeHashCost: bcrypt.MinCost},
		Payment: config.PaymentConfig{
			WebhookSecret: webhookSecret,
			PaymentExpiry: 30 * time.Minute,
		},
		Cloudinary: config.CloudinaryConfig{Folder: "parcelhop/handoff"},
	}
}

type api struct {
	t   *testing.T
	cfg *config.Config
	db  *gorm.DB
	r   *gin.Engine
	d   *testutil.Deal
}

func newAPI(t *testing.T, price int64, opts ...func(*config.Config)) *api {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	db := testutil.NewDB(t)
	return &api{
		t:   t,
		cfg: cfg,
		db:  db,
		r:   router.Setup(cfg, db, router.Deps{Payments: &payment.StubProvider{}}),
		d:   testutil.SeedDeal(t, db, domain.ListingTypeRequest, price),
	}
}

func (a *api) do(method, path string, userID uint, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		token, err := auth.GenerateAccessToken(&a.cfg.JWT, userID, "")
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func (a *api) webhook(reference, status string, secret string) *httptest.ResponseRecorder {
	a.t.Helper()
	body, err := json.Marshal(map[string]string{"reference": reference, "status": status})
	require.NoError(a.t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", payment.Sign(secret, body))
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func (a *api) conv(suffix string) string {
	return "/api/v1/conversations/" + itoa(a.d.Conversation.ID) + suffix
}

// checkoutAndPay opens a checkout as the payer and completes it via webhook.
func (a *api) checkoutAndPay() string {
	a.t.Helper()
	w := a.do(http.MethodPost, a.conv("/checkout"), a.d.PayerID(), nil)
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		OrderID string `json:"order_id"`
		Amount  int64  `json:"amount"`
	}
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out))

	w = a.webhook(out.OrderID, domain.PaymentStatusCompleted, webhookSecret)
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())

	var list struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	w = a.do(http.MethodGet, a.conv("/messages"), a.d.PayerID(), nil)
	require.Equal(a.t, http.StatusOK, w.Code)
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &list))
	require.NotEmpty(a.t, list.Messages)
	p, err := envelope.DecodePayment(list.Messages[len(list.Messages)-1].Content)
	require.NoError(a.t, err)
	require.NotEmpty(a.t, p.DeliveryCode)
	return p.DeliveryCode
}

func itoa(v uint) string { return strconv.FormatUint(uint64(v), 10) }

func TestRequiresToken(t *testing.T) {
	a := newAPI(t, 1000)
	w := a.do(http.MethodGet, a.conv("/deal"), 0, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNonParticipantIsForbidden(t *testing.T) {
	a := newAPI(t, 1000)
	w := a.do(http.MethodGet, a.conv("/messages"), 9999, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = a.do(http.MethodGet, "/api/v1/conversations/abc/deal", a.d.PayerID(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutWebhookAndSettlement(t *testing.T) {
	a := newAPI(t, 200000)
	code := a.checkoutAndPay()

	var p models.Payment
	require.NoError(t, a.db.First(&p).Error)
	assert.Equal(t, domain.PaymentStatusCompleted, p.Status)
	assert.Equal(t, int64(200000), p.AmountCents)

	// The deliverer never sees the code.
	w := a.do(http.MethodGet, a.conv("/messages"), a.d.DelivererID(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), code)

	var view struct {
		PaymentStatus string `json:"payment_status"`
		Escrow        struct {
			NetAmount    int64  `json:"net_amount"`
			PlatformFee  int64  `json:"platform_fee"`
			DeliveryCode string `json:"delivery_code"`
		} `json:"escrow"`
	}
	w = a.do(http.MethodGet, a.conv("/deal"), a.d.DelivererID(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "awaiting_confirmation", view.PaymentStatus)
	assert.Equal(t, int64(190000), view.Escrow.NetAmount)
	assert.Equal(t, int64(10000), view.Escrow.PlatformFee)
	assert.Empty(t, view.Escrow.DeliveryCode)

	// A second checkout is refused once paid.
	w = a.do(http.MethodPost, a.conv("/checkout"), a.d.PayerID(), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// The payer cannot release their own escrow.
	w = a.do(http.MethodPost, a.conv("/delivery-code"), a.d.PayerID(), gin.H{"code": code})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(http.MethodPost, a.conv("/delivery-code"), a.d.DelivererID(), gin.H{"code": code})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var settled struct {
		NewBalance   int64 `json:"new_balance"`
		Confirmation struct {
			GrossAmount   int64 `json:"grossAmount"`
			PaymentAmount int64 `json:"paymentAmount"`
		} `json:"confirmation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settled))
	assert.Equal(t, int64(190000), settled.NewBalance)
	assert.Equal(t, int64(200000), settled.Confirmation.GrossAmount)

	w = a.do(http.MethodPost, a.conv("/delivery-code"), a.d.DelivererID(), gin.H{"code": code})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(http.MethodGet, "/api/v1/me/wallet", a.d.DelivererID(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"balance_cents":190000,"currency":"KES"}`, w.Body.String())

	w = a.do(http.MethodGet, "/api/v1/me/notifications", a.d.PayerID(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), domain.NotifyDeliveryConfirmed)
}

func TestWrongCodesLockOut(t *testing.T) {
	a := newAPI(t, 5000)
	code := a.checkoutAndPay()
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 4; i >= 1; i-- {
		w := a.do(http.MethodPost, a.conv("/delivery-code"), a.d.DelivererID(), gin.H{"code": wrong})
		require.Equal(t, http.StatusBadRequest, w.Code)
		var body struct {
			Notice struct {
				Remaining int `json:"remaining"`
			} `json:"notice"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, i, body.Notice.Remaining)
	}

	w := a.do(http.MethodPost, a.conv("/delivery-code"), a.d.DelivererID(), gin.H{"code": wrong})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1800", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "locked for 30 minutes")

	w = a.do(http.MethodPost, a.conv("/delivery-code"), a.d.DelivererID(), gin.H{"code": code})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	a := newAPI(t, 5000)
	w := a.webhook("parcelhop-unknown", domain.PaymentStatusCompleted, "wrong-secret")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.webhook("parcelhop-unknown", domain.PaymentStatusCompleted, webhookSecret)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFailedCheckoutNotifiesPayer(t *testing.T) {
	a := newAPI(t, 5000)
	w := a.do(http.MethodPost, a.conv("/checkout"), a.d.PayerID(), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var out struct {
		OrderID string `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))

	// Reopening returns the same pending checkout.
	w = a.do(http.MethodPost, a.conv("/checkout"), a.d.PayerID(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), out.OrderID)

	w = a.webhook(out.OrderID, domain.PaymentStatusFailed, webhookSecret)
	require.Equal(t, http.StatusOK, w.Code)

	var p models.Payment
	require.NoError(t, a.db.First(&p).Error)
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
	var n int64
	require.NoError(t, a.db.Model(&models.Notification{}).Where("user_id = ? AND type = ?", a.d.PayerID(), "CHECKOUT_FAILED").Count(&n).Error)
	assert.Equal(t, int64(1), n)

	var escrows int64
	require.NoError(t, a.db.Model(&models.Escrow{}).Count(&escrows).Error)
	assert.Zero(t, escrows)
}

func TestOfferFlowOverHTTP(t *testing.T) {
	a := newAPI(t, 120000)
	w := a.do(http.MethodPost, a.conv("/offers"), a.d.DelivererID(), gin.H{"price": 90000, "message": "cheaper?"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Message      models.ChatMessage `json:"message"`
		DeltaPercent string             `json:"delta_percent"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "-25", created.DeltaPercent)

	w = a.do(http.MethodPost, a.conv("/offers/"+itoa(created.Message.ID)+"/respond"), a.d.PayerID(), gin.H{"action": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = a.do(http.MethodPost, a.conv("/offers/"+itoa(created.Message.ID)+"/respond"), a.d.PayerID(), gin.H{"action": "accept"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(http.MethodPost, a.conv("/checkout"), a.d.PayerID(), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"amount":90000`)

	w = a.do(http.MethodPost, a.conv("/messages"), a.d.PayerID(), gin.H{"content": "  see you at 5  "})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"content":"see you at 5"`)
}

func TestMeConversationsAndDeviceToken(t *testing.T) {
	a := newAPI(t, 5000)
	w := a.do(http.MethodGet, "/api/v1/me/conversations", a.d.DelivererID(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Conversations, 1)
	assert.Equal(t, a.d.Conversation.ID, out.Conversations[0].ID)

	w = a.do(http.MethodPut, "/api/v1/me/fcm-token", a.d.PayerID(), gin.H{"token": "device-abc"})
	require.Equal(t, http.StatusOK, w.Code)
	var u models.User
	require.NoError(t, a.db.First(&u, a.d.PayerID()).Error)
	assert.Equal(t, "device-abc", u.FCMToken)

	w = a.do(http.MethodPut, "/api/v1/me/fcm-token", 9999, gin.H{"token": "device-abc"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnsignedWebhookRejectedInProduction(t *testing.T) {
	a := newAPI(t, 200000, func(cfg *config.Config) {
		cfg.Server.Env = "production"
		cfg.Payment.WebhookSecret = ""
	})
	w := a.do(http.MethodPost, a.conv("/checkout"), a.d.PayerID(), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		OrderID string `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))

	body, err := json.Marshal(map[string]string{"reference": out.OrderID, "status": domain.PaymentStatusCompleted})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewReader(body))
	w = httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var escrows int64
	require.NoError(t, a.db.Model(&models.Escrow{}).Count(&escrows).Error)
	assert.Zero(t, escrows)
	var p models.Payment
	require.NoError(t, a.db.First(&p).Error)
	assert.Equal(t, domain.PaymentStatusPending, p.Status)
}

func TestCheckoutAtSupersededPriceIsNotEscrowed(t *testing.T) {
	a := newAPI(t, 120000)
	w := a.do(http.MethodPost, a.conv("/checkout"), a.d.PayerID(), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var stale struct {
		OrderID string `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stale))

	w = a.do(http.MethodPost, a.conv("/offers"), a.d.DelivererID(), gin.H{"price": 90000})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var offer struct {
		Message models.ChatMessage `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &offer))
	w = a.do(http.MethodPost, a.conv("/offers/"+itoa(offer.Message.ID)+"/respond"), a.d.PayerID(), gin.H{"action": "accept"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// The old checkout completes after the price changed.
	w = a.webhook(stale.OrderID, domain.PaymentStatusCompleted, webhookSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var escrows int64
	require.NoError(t, a.db.Model(&models.Escrow{}).Count(&escrows).Error)
	assert.Zero(t, escrows)
	var audit models.AuditLog
	require.NoError(t, a.db.Where("action = ? AND resource_id = ?", "payment_unescrowed", stale.OrderID).First(&audit).Error)
	assert.Contains(t, audit.Metadata, `"agreed_price":90000`)
	assert.Contains(t, audit.Metadata, `"amount":120000`)

	// A fresh checkout at the agreed price funds the escrow.
	a.checkoutAndPay()
	var e models.Escrow
	require.NoError(t, a.db.First(&e).Error)
	assert.Equal(t, int64(90000), e.Amount)
}

func TestNotificationInbox(t *testing.T) {
	a := newAPI(t, 200000)
	a.checkoutAndPay()

	var inbox struct {
		Notifications []models.Notification `json:"notifications"`
		UnreadCount   int64                 `json:"unread_count"`
	}
	w := a.do(http.MethodGet, "/api/v1/me/notifications?limit=500", a.d.DelivererID(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inbox))
	require.NotEmpty(t, inbox.Notifications)
	assert.Equal(t, int64(len(inbox.Notifications)), inbox.UnreadCount)
	assert.Contains(t, w.Body.String(), `"limit":20`)

	id := itoa(inbox.Notifications[0].ID)
	w = a.do(http.MethodPatch, "/api/v1/me/notifications/"+id+"/read", a.d.PayerID(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = a.do(http.MethodPatch, "/api/v1/me/notifications/"+id+"/read", a.d.DelivererID(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(http.MethodPost, "/api/v1/me/notifications/read-all", a.d.DelivererID(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"marked":`+strconv.FormatInt(inbox.UnreadCount-1, 10)+`}`, w.Body.String())

	w = a.do(http.MethodGet, "/api/v1/me/notifications", a.d.DelivererID(), nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inbox))
	assert.Zero(t, inbox.UnreadCount)
}
