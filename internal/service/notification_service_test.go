package service

import (
	"context"
	"errors"
	"testing"

	"parcelhop/internal/models"
	"parcelhop/internal/repository"
	"parcelhop/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePusher struct {
	tokens []string
	err    error
}

func (f *fakePusher) SendToUser(ctx context.Context, fcmToken string, notifType, title, body string, data map[string]interface{}) error {
	f.tokens = append(f.tokens, fcmToken)
	return f.err
}

func TestNotifyPersistsThenPushes(t *testing.T) {
	db := testutil.NewDB(t)
	withToken := models.User{Username: "amina", Email: "amina@example.com", FCMToken: "tok-1"}
	noToken := models.User{Username: "otieno", Email: "otieno@example.com"}
	require.NoError(t, db.Create(&withToken).Error)
	require.NoError(t, db.Create(&noToken).Error)

	push := &fakePusher{err: errors.New("unregistered")}
	repo := repository.NewNotificationRepository(db)
	svc := NewNotificationService(repo, repository.NewUserRepository(db), push)

	// A push failure does not fail the notification.
	require.NoError(t, svc.Notify(withToken.ID, "OFFER_RECEIVED", "New offer", "body", map[string]interface{}{"conversation_id": uint(3)}))
	require.NoError(t, svc.NotifyCheckoutFailed(noToken.ID, 3, "ord-9"))
	assert.Equal(t, []string{"tok-1"}, push.tokens)

	list, err := repo.ListByUserID(context.Background(), withToken.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.JSONEq(t, `{"conversation_id":3}`, list[0].Data)

	require.NoError(t, repo.MarkRead(context.Background(), list[0].ID, withToken.ID))
	list, err = repo.ListByUserID(context.Background(), withToken.ID, 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, list[0].ReadAt)

	list, err = repo.ListByUserID(context.Background(), noToken.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "CHECKOUT_FAILED", list[0].Type)
}
