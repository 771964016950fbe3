// Package deal runs the deal lifecycle inside a conversation: offers, the
// escrowed payment, delivery-code verification and settlement. The
// conversation feed is the log of record; escrow and attempt rows are
// projections kept in the same database so races can be resolved with row
// locks.
package deal

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"parcelhop/internal/domain"
	"parcelhop/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Feed is the append-only conversation message log.
type Feed interface {
	GetConversation(ctx context.Context, id uint) (*models.Conversation, error)
	AppendMessage(ctx context.Context, m *models.ChatMessage) error
	ListMessages(ctx context.Context, conversationID uint) ([]models.ChatMessage, error)
	GetMessage(ctx context.Context, id uint) (*models.ChatMessage, error)
}

type Listings interface {
	GetListing(ctx context.Context, id uint) (*models.DeliveryListing, error)
	UpdateListingStatus(ctx context.Context, id uint, status string, receiverID *uint) error
}

// Escrows stores the escrow projection and its attempt counter. The
// ForUpdate variants must lock the row for the surrounding transaction.
type Escrows interface {
	GetEscrow(ctx context.Context, conversationID uint) (*models.Escrow, error)
	GetEscrowForUpdate(ctx context.Context, conversationID uint) (*models.Escrow, error)
	CreateEscrow(ctx context.Context, e *models.Escrow) error
	UpdateEscrow(ctx context.Context, e *models.Escrow) error
	GetAttempts(ctx context.Context, conversationID, escrowID uint) (*models.CodeAttempt, error)
	LoadAttemptsForUpdate(ctx context.Context, conversationID, escrowID uint) (*models.CodeAttempt, error)
	SaveAttempts(ctx context.Context, a *models.CodeAttempt) error
}

// Ledger owns wallet balances. Credit must be idempotent on referenceID and
// return the balance after the credit.
type Ledger interface {
	Credit(ctx context.Context, userID uint, amountCents int64, description, category, referenceID string, metadata map[string]interface{}) (*models.WalletTransaction, int64, error)
}

type Users interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// Transactor runs fn in one database transaction carried by the context.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher fans appended messages out to live observers.
type Publisher interface {
	Publish(m models.ChatMessage)
}

type Notifier interface {
	Notify(userID uint, notifType, title, body string, data map[string]interface{}) error
}

type Auditor interface {
	Record(ctx context.Context, userID *uint, action, resource, resourceID string, metadata map[string]interface{})
}

type Deps struct {
	Feed     Feed
	Listings Listings
	Escrows  Escrows
	Ledger   Ledger
	Users    Users
	Tx       Transactor
}

type Config struct {
	Currency     string
	Fees         FeeSchedule
	CodeHashCost int
}

type Service struct {
	feed     Feed
	listings Listings
	escrows  Escrows
	ledger   Ledger
	users    Users
	tx       Transactor

	publisher Publisher
	notifier  Notifier
	auditor   Auditor

	currency string
	fees     FeeSchedule
	codeCost int
	now      func() time.Time

	locks sync.Map // conversation ID -> *sync.Mutex
}

func NewService(d Deps, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = domain.DefaultCurrency
	}
	if cfg.Fees == nil {
		cfg.Fees = PercentFee{}
	}
	if cfg.CodeHashCost == 0 {
		cfg.CodeHashCost = bcrypt.DefaultCost
	}
	return &Service{
		feed:     d.Feed,
		listings: d.Listings,
		escrows:  d.Escrows,
		ledger:   d.Ledger,
		users:    d.Users,
		tx:       d.Tx,
		currency: cfg.Currency,
		fees:     cfg.Fees,
		codeCost: cfg.CodeHashCost,
		now:      time.Now,
	}
}

func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

func (s *Service) WithAuditor(a Auditor) *Service {
	s.auditor = a
	return s
}

// WithClock replaces time.Now; used by tests to step past cooldowns.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// conversationLock serializes deal writes for one conversation in this process.
func (s *Service) conversationLock(id uint) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// participant loads the conversation and its listing and checks membership.
func (s *Service) participant(ctx context.Context, conversationID, userID uint) (*models.Conversation, *models.DeliveryListing, error) {
	conv, err := s.feed.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, notFoundError("conversation not found")
		}
		return nil, nil, transientError("load conversation", err)
	}
	if !conv.IsParticipant(userID) {
		return nil, nil, forbiddenError(MsgNotParticipant)
	}
	listing, err := s.listings.GetListing(ctx, conv.DeliveryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, notFoundError("delivery listing not found")
		}
		return nil, nil, transientError("load listing", err)
	}
	return conv, listing, nil
}

// escrowFor returns the conversation's escrow or nil when none exists yet.
func (s *Service) escrowFor(ctx context.Context, conversationID uint) (*models.Escrow, error) {
	e, err := s.escrows.GetEscrow(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, transientError("load escrow", err)
	}
	return e, nil
}

func (s *Service) publish(m *models.ChatMessage) {
	if s.publisher != nil && m != nil {
		s.publisher.Publish(*m)
	}
}

func (s *Service) notify(userID uint, notifType, title, body string, data map[string]interface{}) {
	if s.notifier == nil || userID == 0 {
		return
	}
	if err := s.notifier.Notify(userID, notifType, title, body, data); err != nil {
		log.Printf("[deal] notify %s to user %d failed: %v", notifType, userID, err)
	}
}

func (s *Service) audit(ctx context.Context, userID uint, action, resource, resourceID string, metadata map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	uid := userID
	s.auditor.Record(ctx, &uid, action, resource, resourceID, metadata)
}

func (s *Service) displayName(ctx context.Context, userID uint) string {
	if s.users == nil {
		return ""
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil || u == nil {
		return ""
	}
	return u.DisplayName()
}
