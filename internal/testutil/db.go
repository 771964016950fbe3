// Package testutil builds throwaway databases and fixtures for tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"parcelhop/internal/database"
	"parcelhop/internal/domain"
	"parcelhop/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// NewDB opens a migrated in-memory SQLite database private to t. It holds a
// single connection, so code under test must not query outside its own
// transaction while one is open.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	db, err := database.Open(sqlite.Open(dsn))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// Deal is a seeded conversation about one listing.
type Deal struct {
	Sender       models.User
	Traveler     models.User
	Listing      models.DeliveryListing
	Conversation models.Conversation
}

// PayerID is who funds the escrow for the seeded listing type.
func (d *Deal) PayerID() uint { return d.Conversation.PayerID(d.Listing.Type) }

func (d *Deal) DelivererID() uint { return d.Conversation.DelivererID(d.Listing.Type) }

// SeedDeal creates a sender, a traveler, a listing of listingType at price and
// the conversation between them. For a request listing the sender pays; for
// an offer listing the traveler posted it and the sender pays as counterparty.
func SeedDeal(t *testing.T, db *gorm.DB, listingType string, price int64) *Deal {
	t.Helper()
	n := dbSeq.Add(1)
	d := &Deal{
		Sender:   models.User{Username: fmt.Sprintf("sender%d", n), Email: fmt.Sprintf("sender%d@example.com", n)},
		Traveler: models.User{Username: fmt.Sprintf("traveler%d", n), Email: fmt.Sprintf("traveler%d@example.com", n)},
	}
	require.NoError(t, db.Create(&d.Sender).Error)
	require.NoError(t, db.Create(&d.Traveler).Error)

	owner, counterparty := d.Sender.ID, d.Traveler.ID
	if listingType == domain.ListingTypeOffer {
		owner, counterparty = d.Traveler.ID, d.Sender.ID
	}
	d.Listing = models.DeliveryListing{
		Type:     listingType,
		Price:    price,
		Currency: domain.DefaultCurrency,
		SenderID: owner,
		Title:    "Documents to Mombasa",
		Status:   domain.ListingStatusOpen,
	}
	require.NoError(t, db.Create(&d.Listing).Error)
	d.Conversation = models.Conversation{DeliveryID: d.Listing.ID, OwnerID: owner, CounterpartyID: counterparty}
	require.NoError(t, db.Create(&d.Conversation).Error)
	return d
}
