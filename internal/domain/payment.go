package domain

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "created"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCaptured  PaymentStatus = "captured"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Terminal reports whether no further transition may leave this status.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCaptured || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

// CanTransitionTo encodes the record state machine:
// created -> pending -> {captured | failed}, created -> cancelled,
// pending -> failed (sweeper abandonment uses this edge too).
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	switch s {
	case PaymentStatusCreated:
		return target == PaymentStatusPending || target == PaymentStatusCancelled
	case PaymentStatusPending:
		return target == PaymentStatusCaptured || target == PaymentStatusFailed
	default:
		return false
	}
}

var (
	ErrAmountMismatch     = errors.New("amount mismatch")
	ErrPaymentRefConflict = errors.New("external payment id already bound")
)

// FailureReasonAbandoned marks records the sweeper gave up on.
const FailureReasonAbandoned = "abandoned"

type PaymentRecord struct {
	ID                string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	ExternalOrderID   *string       `gorm:"type:varchar(64);uniqueIndex" json:"external_order_id"`
	ExternalPaymentID *string       `gorm:"type:varchar(64);index" json:"external_payment_id"`
	AmountMinorUnits  int64         `gorm:"not null" json:"amount_minor_units"`
	Currency          string        `gorm:"type:varchar(8);not null" json:"currency"`
	Purpose           string        `gorm:"type:varchar(64);not null" json:"purpose"`
	SubjectRef        string        `gorm:"type:varchar(128);not null" json:"subject_ref"`
	ReceiptRef        string        `gorm:"type:varchar(64);not null" json:"receipt_ref"`
	Status            PaymentStatus `gorm:"type:varchar(20);default:'created';index" json:"status"`
	FailureReason     string        `gorm:"type:text" json:"failure_reason,omitempty"`
	HookFired         bool          `gorm:"default:false" json:"hook_fired"`
	FlaggedForReview  bool          `gorm:"default:false;index" json:"flagged_for_review"`
	SweepAttempts     int           `gorm:"default:0" json:"sweep_attempts"`
	CapturedAt        *time.Time    `json:"captured_at"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (PaymentRecord) TableName() string { return "payment_records" }

// GatewayEventSource identifies which path delivered a gateway notification.
type GatewayEventSource string

const (
	EventSourceCallback GatewayEventSource = "callback"
	EventSourceWebhook  GatewayEventSource = "webhook"
	EventSourceSweeper  GatewayEventSource = "sweeper"
)

// GatewayEvent is the append-only audit log of raw gateway notifications.
// Rows are never updated or deleted; rejected and duplicate deliveries are
// recorded alongside applied ones.
type GatewayEvent struct {
	ID             int64              `gorm:"primaryKey" json:"id"`
	RecordID       string             `gorm:"type:varchar(36);index" json:"record_id"`
	Source         GatewayEventSource `gorm:"type:varchar(16);not null" json:"source"`
	EventType      string             `gorm:"type:varchar(64)" json:"event_type"`
	Payload        datatypes.JSON     `gorm:"type:json" json:"payload"`
	SignatureValid bool               `gorm:"default:false" json:"signature_valid"`
	Outcome        string             `gorm:"type:varchar(64)" json:"outcome"`
	CreatedAt      time.Time          `json:"created_at"`
}

func (GatewayEvent) TableName() string { return "gateway_events" }

// CapturedPayment is handed to the downstream collaborator exactly once per
// record, on the first transition into captured.
type CapturedPayment struct {
	RecordID         string
	SubjectRef       string
	Purpose          string
	AmountMinorUnits int64
	Currency         string
}

// TransitionEvidence carries what a notification asserts about the payment.
// AmountMinorUnits == 0 means the notification carried no amount and the
// integrity check is skipped (amounts are always positive on records).
type TransitionEvidence struct {
	AmountMinorUnits  int64
	Currency          string
	ExternalPaymentID string
	Reason            string
}
