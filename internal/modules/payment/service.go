package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"templeseva/internal/config"
	"templeseva/internal/domain"
	"templeseva/internal/repository"
)

// Service orchestrates checkout, funnels every terminal transition through
// the record store's single transition path, and owns the captured hook.
type Service struct {
	records   recordRepo
	gateway   gatewayClient
	hook      capturedHook
	publisher statusPublisher
	cfg       *config.PaymentRuntimeConfig
	loggerf   func(format string, args ...interface{})
}

func NewService(records recordRepo, gw gatewayClient, hook capturedHook, publisher statusPublisher, cfg *config.PaymentRuntimeConfig, loggerf func(format string, args ...interface{})) *Service {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Service{
		records:   records,
		gateway:   gw,
		hook:      hook,
		publisher: publisher,
		cfg:       cfg,
		loggerf:   loggerf,
	}
}

func (s *Service) BeginCheckout(ctx context.Context, req BeginCheckoutRequest) (*BeginCheckoutResponse, error) {
	if req.AmountMinorUnits <= 0 {
		return nil, fmt.Errorf("%w: amount must be a positive integer in minor units", ErrInvalidRequest)
	}
	if !s.cfg.CurrencyAllowed(req.Currency) {
		return nil, fmt.Errorf("%w: unsupported currency %q", ErrInvalidRequest, req.Currency)
	}

	rec := &domain.PaymentRecord{
		ID:               uuid.NewString(),
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         req.Currency,
		Purpose:          req.Purpose,
		SubjectRef:       req.SubjectRef,
		ReceiptRef:       "rcpt_" + uuid.NewString()[:8],
		Status:           domain.PaymentStatusCreated,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("save payment record: %w", err)
	}

	order, err := s.gateway.CreateOrder(ctx, rec.AmountMinorUnits, rec.Currency, rec.ReceiptRef)
	if err != nil {
		// Record stays in created; the checkout is retryable.
		s.loggerf("level=error msg=gateway order creation failed record_id=%s err=%v", rec.ID, err)
		return nil, fmt.Errorf("%w: %w", ErrCheckoutFailed, err)
	}

	if err := s.records.MarkPending(ctx, rec.ID, order.ID); err != nil {
		return nil, fmt.Errorf("mark pending record_id=%s: %w", rec.ID, err)
	}
	s.loggerf("level=info msg=checkout started record_id=%s order_id=%s amount=%d currency=%s purpose=%s",
		rec.ID, order.ID, rec.AmountMinorUnits, rec.Currency, rec.Purpose)

	return &BeginCheckoutResponse{
		RecordID:         rec.ID,
		ExternalOrderID:  order.ID,
		AmountMinorUnits: rec.AmountMinorUnits,
		Currency:         rec.Currency,
		GatewayKeyID:     s.cfg.GatewayKeyID,
	}, nil
}

// CancelCheckout abandons a record before any gateway attempt.
func (s *Service) CancelCheckout(ctx context.Context, recordID string) error {
	res, err := s.records.Transition(ctx, recordID, domain.PaymentStatusCancelled, domain.TransitionEvidence{Reason: "cancelled by user"})
	if err != nil {
		return err
	}
	if !res.Applied && !res.Idempotent {
		return fmt.Errorf("%w: status %s", ErrNotCancellable, res.Status)
	}
	s.publish(recordID, domain.PaymentStatusCancelled)
	return nil
}

func (s *Service) Status(ctx context.Context, recordID string) (*StatusResponse, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	resp := &StatusResponse{
		RecordID:         rec.ID,
		Status:           string(rec.Status),
		AmountMinorUnits: rec.AmountMinorUnits,
		Currency:         rec.Currency,
		Purpose:          rec.Purpose,
		SubjectRef:       rec.SubjectRef,
		FailureReason:    rec.FailureReason,
	}
	if rec.ExternalOrderID != nil {
		resp.ExternalOrderID = *rec.ExternalOrderID
	}
	return resp, nil
}

func (s *Service) Events(ctx context.Context, recordID string) ([]domain.GatewayEvent, error) {
	if _, err := s.records.GetByID(ctx, recordID); err != nil {
		return nil, err
	}
	return s.records.ListEvents(ctx, recordID)
}

// HandleCallback processes the gateway's synchronous completion callback.
// The signature covers orderID|paymentID; the callback carries no amount, so
// the record's own amount stands as evidence.
func (s *Service) HandleCallback(ctx context.Context, req CallbackRequest) error {
	valid := VerifySignature(CallbackPayload(req.ExternalOrderID, req.ExternalPaymentID), req.Signature, []byte(s.cfg.GatewayKeySecret))

	rec, lookupErr := s.records.GetByExternalOrderID(ctx, req.ExternalOrderID)
	recordID := ""
	if lookupErr == nil {
		recordID = rec.ID
	}
	s.audit(ctx, recordID, domain.EventSourceCallback, "payment.callback", req, valid, callbackOutcome(valid, lookupErr))

	if !valid {
		s.loggerf("level=warn msg=callback signature rejected order_id=%s", req.ExternalOrderID)
		return ErrInvalidSignature
	}
	if lookupErr != nil {
		s.loggerf("level=warn msg=callback for unknown order order_id=%s", req.ExternalOrderID)
		return ErrUnknownOrder
	}

	ev := domain.TransitionEvidence{
		AmountMinorUnits:  rec.AmountMinorUnits,
		Currency:          rec.Currency,
		ExternalPaymentID: req.ExternalPaymentID,
	}
	_, err := s.ApplyTransition(ctx, rec.ID, domain.PaymentStatusCaptured, ev, domain.EventSourceCallback)
	return err
}

// ApplyTransition is the shared entry point for callback, webhook and
// sweeper transitions. The store decides atomically whether the hook fires;
// only the winning caller invokes it, after the commit.
func (s *Service) ApplyTransition(ctx context.Context, recordID string, target domain.PaymentStatus, ev domain.TransitionEvidence, source domain.GatewayEventSource) (repository.TransitionResult, error) {
	res, err := s.records.Transition(ctx, recordID, target, ev)
	if err != nil {
		if errors.Is(err, domain.ErrAmountMismatch) || errors.Is(err, domain.ErrPaymentRefConflict) {
			s.loggerf("level=error msg=transition integrity rejection record_id=%s target=%s source=%s err=%v", recordID, target, source, err)
		}
		return res, err
	}

	if res.Applied {
		s.loggerf("level=info msg=payment transition applied record_id=%s status=%s source=%s", recordID, res.Status, source)
		s.publish(recordID, res.Status)
	} else if res.Idempotent {
		s.loggerf("level=info msg=duplicate terminal notification record_id=%s status=%s source=%s", recordID, res.Status, source)
	} else {
		s.loggerf("level=warn msg=transition rejected record_id=%s current=%s target=%s source=%s", recordID, res.Status, target, source)
	}

	if res.FireHook {
		s.fireCapturedHook(ctx, recordID)
	}
	return res, nil
}

func (s *Service) fireCapturedHook(ctx context.Context, recordID string) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		s.loggerf("level=error msg=captured hook load failed record_id=%s err=%v", recordID, err)
		return
	}
	cp := domain.CapturedPayment{
		RecordID:         rec.ID,
		SubjectRef:       rec.SubjectRef,
		Purpose:          rec.Purpose,
		AmountMinorUnits: rec.AmountMinorUnits,
		Currency:         rec.Currency,
	}
	if err := s.hook.OnPaymentCaptured(ctx, cp); err != nil {
		// The hook fires at most once per record; a failing collaborator is
		// surfaced to operators, not retried here.
		s.loggerf("level=error msg=captured hook failed record_id=%s subject_ref=%s err=%v", rec.ID, rec.SubjectRef, err)
	}
}

func (s *Service) publish(recordID string, status domain.PaymentStatus) {
	if s.publisher != nil {
		s.publisher.PublishStatus(recordID, status)
	}
}

func (s *Service) audit(ctx context.Context, recordID string, source domain.GatewayEventSource, eventType string, payload interface{}, sigValid bool, outcome string) {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	auditErr := s.records.AppendEvent(ctx, &domain.GatewayEvent{
		RecordID:       recordID,
		Source:         source,
		EventType:      eventType,
		Payload:        datatypes.JSON(raw),
		SignatureValid: sigValid,
		Outcome:        outcome,
	})
	if auditErr != nil {
		s.loggerf("level=error msg=audit append failed record_id=%s source=%s err=%v", recordID, source, auditErr)
	}
}

func callbackOutcome(valid bool, lookupErr error) string {
	switch {
	case !valid:
		return "invalid_signature"
	case lookupErr != nil:
		return "unknown_order"
	default:
		return "accepted"
	}
}
