package domain

// Listing types. A "request" is posted by a sender who needs a package carried;
// an "offer" is posted by a traveler advertising spare capacity.
const (
	ListingTypeRequest = "request"
	ListingTypeOffer   = "offer"
)

const (
	ListingStatusOpen                 = "open"
	ListingStatusAwaitingConfirmation = "awaiting_confirmation"
	ListingStatusDelivered            = "delivered"
)

// Chat message types stored on ChatMessage.MessageType.
const (
	MessageTypeText                 = "text"
	MessageTypeOffer                = "offer"
	MessageTypeOfferAccepted        = "offer_accepted"
	MessageTypeOfferRejected        = "offer_rejected"
	MessageTypePayment              = "payment"
	MessageTypeDeliveryConfirmation = "delivery_confirmation"
)

const (
	EscrowStatusAwaitingConfirmation = "awaiting_confirmation"
	EscrowStatusSettled              = "settled"
)

// Checkout statuses for the external payment gateway.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

const (
	WalletTxCategoryDeliveryEarning = "DELIVERY_EARNING"
)

const (
	NotifyOfferReceived     = "OFFER_RECEIVED"
	NotifyOfferAccepted     = "OFFER_ACCEPTED"
	NotifyOfferRejected     = "OFFER_REJECTED"
	NotifyPaymentEscrowed   = "PAYMENT_ESCROWED"
	NotifyCodeLockout       = "CODE_LOCKOUT"
	NotifyDeliveryConfirmed = "DELIVERY_CONFIRMED"
)

// Participant roles inside a conversation, derived from the listing type.
const (
	RolePayer     = "payer"
	RoleDeliverer = "deliverer"
)

const DefaultCurrency = "KES"
