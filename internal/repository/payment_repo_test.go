package repository_test

import (
	"context"
	"testing"
	"time"

	"parcelhop/internal/domain"
	"parcelhop/internal/models"
	"parcelhop/internal/repository"
	"parcelhop/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newPayment(ref string, conversationID uint) *models.Payment {
	expires := time.Now().Add(30 * time.Minute)
	return &models.Payment{
		UserID:         4,
		ConversationID: conversationID,
		AmountCents:    120000,
		Currency:       "KES",
		Provider:       "stub",
		ProviderRef:    ref,
		Status:         domain.PaymentStatusPending,
		IdempotencyKey: ref,
		ExpiresAt:      &expires,
	}
}

func TestPaymentLookupByProviderRef(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewPaymentRepository(db)
	ctx := context.Background()

	p := newPayment("parcelhop-a", 3)
	require.NoError(t, repo.Create(ctx, p))
	require.NotZero(t, p.ID)

	got, err := repo.GetByProviderRef(ctx, "parcelhop-a")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, int64(120000), got.AmountCents)

	_, err = repo.GetByProviderRef(ctx, "parcelhop-missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.ErrorIs(t, repo.Create(ctx, newPayment("parcelhop-a", 3)), gorm.ErrDuplicatedKey)
}

func TestPendingCheckoutIgnoresSettledOnes(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewPaymentRepository(db)
	ctx := context.Background()

	p := newPayment("parcelhop-b", 5)
	require.NoError(t, repo.Create(ctx, p))
	pending, err := repo.GetPendingForConversation(ctx, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, p.ID, pending.ID)

	p.Status = domain.PaymentStatusCompleted
	require.NoError(t, repo.Update(ctx, p))
	_, err = repo.GetPendingForConversation(ctx, 5, 4)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestNotificationInboxIsOwnerScoped(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewNotificationRepository(db)
	ctx := context.Background()

	for _, typ := range []string{"OFFER_RECEIVED", "PAYMENT_ESCROWED"} {
		require.NoError(t, repo.Create(ctx, &models.Notification{UserID: 1, Type: typ, Title: typ}))
	}
	other := &models.Notification{UserID: 2, Type: "OFFER_RECEIVED"}
	require.NoError(t, repo.Create(ctx, other))

	unread, err := repo.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	assert.ErrorIs(t, repo.MarkRead(ctx, other.ID, 1), gorm.ErrRecordNotFound)
	require.NoError(t, repo.MarkRead(ctx, other.ID, 2))
	require.NoError(t, repo.MarkRead(ctx, other.ID, 2))

	n, err := repo.MarkAllRead(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	unread, err = repo.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, unread)
}
