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

func TestLoadAttemptsCreatesRowOnce(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewEscrowRepository(db)
	txm := repository.NewTxManager(db)
	ctx := context.Background()

	_, err := repo.GetAttempts(ctx, 1, 1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	until := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err = txm.WithinTx(ctx, func(ctx context.Context) error {
		a, err := repo.LoadAttemptsForUpdate(ctx, 1, 1)
		if err != nil {
			return err
		}
		assert.Zero(t, a.Attempts)
		a.Attempts, a.CooldownUntil = 5, &until
		return repo.SaveAttempts(ctx, a)
	})
	require.NoError(t, err)

	err = txm.WithinTx(ctx, func(ctx context.Context) error {
		a, err := repo.LoadAttemptsForUpdate(ctx, 1, 1)
		if err != nil {
			return err
		}
		assert.Equal(t, 5, a.Attempts)
		return nil
	})
	require.NoError(t, err)

	var n int64
	require.NoError(t, db.Model(&models.CodeAttempt{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	a, err := repo.GetAttempts(ctx, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, a.CooldownUntil)
	assert.True(t, a.CooldownUntil.Equal(until))
}

func TestOneEscrowPerConversation(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewEscrowRepository(db)
	ctx := context.Background()
	mk := func(deliveryID uint) *models.Escrow {
		return &models.Escrow{
			ConversationID: 3, DeliveryID: deliveryID, PaymentMessageID: 1, PaidByID: 2,
			Amount: 100, NetAmount: 95, PlatformFee: 5, Currency: domain.DefaultCurrency,
			CodeHash: "x", Status: domain.EscrowStatusAwaitingConfirmation,
		}
	}
	require.NoError(t, repo.CreateEscrow(ctx, mk(1)))
	err := repo.CreateEscrow(ctx, mk(2))
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestFeedOrderAndListingStatus(t *testing.T) {
	db := testutil.NewDB(t)
	d := testutil.SeedDeal(t, db, domain.ListingTypeRequest, 1000)
	feed := repository.NewConversationRepository(db)
	listings := repository.NewListingRepository(db)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, feed.AppendMessage(ctx, &models.ChatMessage{
			ConversationID: d.Conversation.ID, SenderID: d.Sender.ID, MessageType: domain.MessageTypeText, Content: text,
		}))
	}
	msgs, err := feed.ListMessages(ctx, d.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)

	convs, err := feed.ListForUser(ctx, d.Traveler.ID, 10)
	require.NoError(t, err)
	assert.Len(t, convs, 1)

	receiver := d.Traveler.ID
	require.NoError(t, listings.UpdateListingStatus(ctx, d.Listing.ID, domain.ListingStatusDelivered, &receiver))
	l, err := listings.GetListing(ctx, d.Listing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusDelivered, l.Status)
	require.NotNil(t, l.ReceiverID)
	assert.Equal(t, receiver, *l.ReceiverID)

	err = listings.UpdateListingStatus(ctx, 9999, domain.ListingStatusDelivered, nil)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAuditRecordCarriesRequestOrigin(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewAuditLogRepository(db)
	ctx := context.WithValue(context.Background(), repository.ClientIPKey{}, "10.0.0.9")
	ctx = context.WithValue(ctx, repository.UserAgentKey{}, "parcelhop-android/3.1")
	uid := uint(4)

	repo.Record(ctx, &uid, "delivery_confirmed", "conversation", "12", map[string]interface{}{"net": 95})

	list, err := repo.ListByResource(context.Background(), "conversation", "12")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "10.0.0.9", list[0].IP)
	assert.Equal(t, "parcelhop-android/3.1", list[0].UserAgent)
	assert.JSONEq(t, `{"net":95}`, list[0].Metadata)
}
