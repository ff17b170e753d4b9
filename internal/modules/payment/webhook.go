package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"

	"templeseva/internal/domain"
)

// ProcessingOutcome classifies what a webhook delivery did. Every outcome
// except OutcomeInvalidSignature is acknowledged to the gateway, since
// nothing a retry could change remains.
type ProcessingOutcome string

const (
	OutcomeApplied          ProcessingOutcome = "applied"
	OutcomeDuplicate        ProcessingOutcome = "duplicate"
	OutcomeRejected         ProcessingOutcome = "rejected"
	OutcomeInvalidSignature ProcessingOutcome = "invalid_signature"
	OutcomeUnknownOrder     ProcessingOutcome = "unknown_order"
	OutcomeIgnoredEvent     ProcessingOutcome = "ignored_event"
	OutcomeIntegrityFailure ProcessingOutcome = "integrity_failure"
)

// WebhookProcessor verifies and applies asynchronous gateway notifications.
type WebhookProcessor struct {
	records recordRepo
	applier *Service
	secret  []byte
	loggerf func(format string, args ...interface{})
}

func NewWebhookProcessor(records recordRepo, applier *Service, webhookSecret string, loggerf func(format string, args ...interface{})) (*WebhookProcessor, error) {
	if err := ValidateEventTargets(); err != nil {
		return nil, fmt.Errorf("event target map: %w", err)
	}
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &WebhookProcessor{
		records: records,
		applier: applier,
		secret:  []byte(webhookSecret),
		loggerf: loggerf,
	}, nil
}

// HandleNotification verifies the signature over the raw body, maps the
// vendor event type to a local target state and applies the transition.
// Safe to call any number of times with the same body.
func (w *WebhookProcessor) HandleNotification(ctx context.Context, rawBody []byte, signatureHeader string) (ProcessingOutcome, error) {
	valid := VerifySignature(rawBody, signatureHeader, w.secret)

	var env webhookEnvelope
	parseErr := json.Unmarshal(rawBody, &env)
	entity := env.Payload.Payment.Entity

	recordID := ""
	var rec *domain.PaymentRecord
	if valid && parseErr == nil && entity.OrderID != "" {
		if found, err := w.records.GetByExternalOrderID(ctx, entity.OrderID); err == nil {
			rec = found
			recordID = found.ID
		}
	}

	outcome := OutcomeRejected
	defer func() {
		// The audit trail includes rejected and duplicate deliveries.
		w.audit(ctx, recordID, env.Event, rawBody, valid, outcome)
	}()

	if !valid {
		outcome = OutcomeInvalidSignature
		w.loggerf("level=warn msg=webhook signature rejected event=%s order_id=%s", env.Event, entity.OrderID)
		return outcome, ErrInvalidSignature
	}
	if parseErr != nil {
		outcome = OutcomeRejected
		w.loggerf("level=warn msg=webhook body unparseable err=%v", parseErr)
		return outcome, fmt.Errorf("parse webhook body: %w", parseErr)
	}

	target, known := eventTargets[env.Event]
	if !known {
		outcome = OutcomeIgnoredEvent
		w.loggerf("level=info msg=unsubscribed webhook event dropped event=%s order_id=%s", env.Event, entity.OrderID)
		return outcome, nil
	}

	if rec == nil {
		// Not ours; acknowledged so the gateway stops retrying.
		outcome = OutcomeUnknownOrder
		w.loggerf("level=warn msg=webhook for unknown order dropped event=%s order_id=%s", env.Event, entity.OrderID)
		return outcome, nil
	}

	ev := domain.TransitionEvidence{
		AmountMinorUnits:  entity.AmountMinorUnits,
		Currency:          entity.Currency,
		ExternalPaymentID: entity.ID,
	}
	if target == domain.PaymentStatusFailed {
		ev.Reason = "gateway reported failure"
	}

	res, err := w.applier.ApplyTransition(ctx, rec.ID, target, ev, domain.EventSourceWebhook)
	if err != nil {
		if errors.Is(err, domain.ErrAmountMismatch) || errors.Is(err, domain.ErrPaymentRefConflict) {
			outcome = OutcomeIntegrityFailure
			return outcome, err
		}
		outcome = OutcomeRejected
		return outcome, err
	}

	switch {
	case res.Applied:
		outcome = OutcomeApplied
	case res.Idempotent:
		outcome = OutcomeDuplicate
	default:
		outcome = OutcomeRejected
	}
	return outcome, nil
}

func (w *WebhookProcessor) audit(ctx context.Context, recordID, eventType string, rawBody []byte, sigValid bool, outcome ProcessingOutcome) {
	payload := rawBody
	if !json.Valid(payload) {
		quoted, err := json.Marshal(string(rawBody))
		if err != nil {
			quoted = []byte("{}")
		}
		payload = quoted
	}
	if err := w.records.AppendEvent(ctx, &domain.GatewayEvent{
		RecordID:       recordID,
		Source:         domain.EventSourceWebhook,
		EventType:      eventType,
		Payload:        datatypes.JSON(payload),
		SignatureValid: sigValid,
		Outcome:        string(outcome),
	}); err != nil {
		w.loggerf("level=error msg=webhook audit append failed record_id=%s err=%v", recordID, err)
	}
}
