package payment

import (
	"context"
	"time"

	"templeseva/internal/domain"
	"templeseva/internal/gateway"
	"templeseva/internal/repository"
)

type recordRepo interface {
	Create(ctx context.Context, p *domain.PaymentRecord) error
	GetByID(ctx context.Context, id string) (*domain.PaymentRecord, error)
	GetByExternalOrderID(ctx context.Context, orderID string) (*domain.PaymentRecord, error)
	MarkPending(ctx context.Context, id, externalOrderID string) error
	Transition(ctx context.Context, id string, target domain.PaymentStatus, ev domain.TransitionEvidence) (repository.TransitionResult, error)
	AppendEvent(ctx context.Context, ev *domain.GatewayEvent) error
	ListEvents(ctx context.Context, recordID string) ([]domain.GatewayEvent, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentRecord, error)
	IncrementSweepAttempts(ctx context.Context, id string) (int, error)
}

type gatewayClient interface {
	CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receiptRef string) (*gateway.Order, error)
	FetchPayment(ctx context.Context, externalPaymentID string) (*gateway.Payment, error)
}

// capturedHook receives the downstream side effect exactly once per record.
type capturedHook interface {
	OnPaymentCaptured(ctx context.Context, cp domain.CapturedPayment) error
}

// statusPublisher pushes applied transitions to subscribed checkout clients.
type statusPublisher interface {
	PublishStatus(recordID string, status domain.PaymentStatus)
}
