package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"templeseva/internal/domain"
)

func webhookBody(event, orderID, paymentID, status string, amount int64, currency string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":%q,"payload":{"payment":{"entity":{"id":%q,"order_id":%q,"status":%q,"amount":%d,"currency":%q}}}}`,
		event, paymentID, orderID, status, amount, currency))
}

func signedNotification(event, orderID, paymentID, status string, amount int64, currency string) ([]byte, string) {
	body := webhookBody(event, orderID, paymentID, status, amount, currency)
	return body, SignPayload(body, []byte(testWebhookSecret))
}

func TestWebhook_CapturedHappyPath(t *testing.T) {
	rig := setupRig(t)
	ctx := context.Background()
	resp := rig.beginCheckout(t, 50000, "event-registration", "event-1")

	body, sig := signedNotification("payment.captured", resp.ExternalOrderID, "pay_wh_1", "captured", 50000, "INR")
	outcome, err := rig.webhook.HandleNotification(ctx, body, sig)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}

	rec, _ := rig.repo.GetByID(ctx, resp.RecordID)
	if rec.Status != domain.PaymentStatusCaptured {
		t.Fatalf("expected captured, got %s", rec.Status)
	}
	if rec.ExternalPaymentID == nil || *rec.ExternalPaymentID != "pay_wh_1" {
		t.Fatal("expected payment id bound")
	}
	if rec.CapturedAt == nil {
		t.Fatal("expected captured_at set")
	}
	if rig.hook.count() != 1 {
		t.Fatalf("expected hook fired once, got %d", rig.hook.count())
	}

	events, _ := rig.repo.ListEvents(ctx, resp.RecordID)
	if len(events) != 1 || events[0].Outcome != string(OutcomeApplied) || !events[0].SignatureValid {
		t.Fatalf("expected one applied audit row, got %+v", events)
	}
}

func TestWebhook_DuplicateDeliveryIdempotent(t *testing.T) {
	rig := setupRig(t)
	ctx := context.Background()
	resp := rig.beginCheckout(t, 50000, "donation", "devotee-3")

	body, sig := signedNotification("payment.captured", resp.ExternalOrderID, "pay_dup", "captured", 50000, "INR")
	for i, want := range []ProcessingOutcome{OutcomeApplied, OutcomeDuplicate, OutcomeDuplicate} {
		outcome, err := rig.webhook.HandleNotification(ctx, body, sig)
		if err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
		if outcome != want {
			t.Fatalf("delivery %d: expected %s, got %s", i+1, want, outcome)
		}
	}
	if rig.hook.count() != 1 {
		t.Fatalf("hook must fire exactly once across redeliveries, got %d", rig.hook.count())
	}

	events, _ := rig.repo.ListEvents(ctx, resp.RecordID)
	if len(events) != 3 {
		t.Fatalf("every delivery lands on the audit trail, got %d rows", len(events))
	}
}

func TestWebhook_ForgedSignature(t *testing.T) {
	rig := setupRig(t)
	ctx := context.Background()
	resp := rig.beginCheckout(t, 50000, "donation", "devotee-3")

	body := webhookBody("payment.captured", resp.ExternalOrderID, "pay_evil", "captured", 50000, "INR")
	sig := SignPayload(body, []byte("wrong secret"))

	outcome, err := rig.webhook.HandleNotification(ctx, body, sig)
	if outcome != OutcomeInvalidSignature || !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid_signature, got outcome=%s err=%v", outcome, err)
	}

	rec, _ := rig.repo.GetByID(ctx, resp.RecordID)
	if rec.Status != domain.PaymentStatusPending {
		t.Fatalf("forged webhook must not move the record, got %s", rec.Status)
	}
	if rig.hook.count() != 0 {
		t.Fatal("hook must not fire on forged webhook")
	}
}

func TestWebhook_UnknownOrderAcked(t *testing.T) {
	rig := setupRig(t)

	body, sig := signedNotification("payment.captured", "order_unknown", "pay_x", "captured", 100, "INR")
	outcome, err := rig.webhook.HandleNotification(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("unknown order must be acked, got %v", err)
	}
	if outcome != OutcomeUnknownOrder {
		t.Fatalf("expected unknown_order, got %s", outcome)
	}
}

func TestWebhook_UnsubscribedEventDropped(t *testing.T) {
	rig := setupRig(t)
	ctx := context.Background()
	resp := rig.beginCheckout(t, 50000, "donation", "devotee-3")

	body, sig := signedNotification("refund.created", resp.ExternalOrderID, "pay_x", "refunded", 50000, "INR")
	outcome, err := rig.webhook.HandleNotification(ctx, body, sig)
	if err != nil || outcome != OutcomeIgnoredEvent {
		t.Fatalf("expected ignored_event with nil err, got outcome=%s err=%v", outcome, err)
	}

	rec, _ := rig.repo.GetByID(ctx, resp.RecordID)
	if rec.Status != domain.PaymentStatusPending {
		t.Fatalf("unsubscribed event must not move the record, got %s", rec.Status)
	}
}

func TestWebhook_AmountMismatchFlags(t *testing.T) {
	rig := setupRig(t)
	ctx := context.Background()
	resp := rig.beginCheckout(t, 50000, "donation", "devotee-3")

	body, sig := signedNotification("payment.captured", resp.ExternalOrderID, "pay_x", "captured", 49999, "INR")
	outcome, err := rig.webhook.HandleNotification(ctx, body, sig)
	if outcome != OutcomeIntegrityFailure || !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("expected integrity failure, got outcome=%s err=%v", outcome, err)
	}

	rec, _ := rig.repo.GetByID(ctx, resp.RecordID)
	if rec.Status != domain.PaymentStatusPending || !rec.FlaggedForReview {
		t.Fatalf("expected pending and flagged, got status=%s flagged=%t", rec.Status, rec.FlaggedForReview)
	}
	if rig.hook.count() != 0 {
		t.Fatal("hook must not fire on amount mismatch")
	}
}

func TestWebhook_LateFailureAfterCapture(t *testing.T) {
	rig := setupRig(t)
	ctx := context.Background()
	resp := rig.beginCheckout(t, 50000, "donation", "devotee-3")

	body, sig := signedNotification("payment.captured", resp.ExternalOrderID, "pay_ooo", "captured", 50000, "INR")
	if outcome, err := rig.webhook.HandleNotification(ctx, body, sig); err != nil || outcome != OutcomeApplied {
		t.Fatalf("capture: outcome=%s err=%v", outcome, err)
	}

	// An out-of-order failed notification for the same payment is dropped.
	body, sig = signedNotification("payment.failed", resp.ExternalOrderID, "pay_ooo", "failed", 50000, "INR")
	outcome, err := rig.webhook.HandleNotification(ctx, body, sig)
	if err != nil {
		t.Fatalf("late failure: %v", err)
	}
	if outcome != OutcomeRejected {
		t.Fatalf("expected rejected for failed-after-captured, got %s", outcome)
	}

	rec, _ := rig.repo.GetByID(ctx, resp.RecordID)
	if rec.Status != domain.PaymentStatusCaptured {
		t.Fatalf("captured is terminal, got %s", rec.Status)
	}
}

func TestWebhook_UnparseableBody(t *testing.T) {
	rig := setupRig(t)

	body := []byte("not json at all")
	sig := SignPayload(body, []byte(testWebhookSecret))
	outcome, err := rig.webhook.HandleNotification(context.Background(), body, sig)
	if outcome != OutcomeRejected || err == nil {
		t.Fatalf("expected rejected with error, got outcome=%s err=%v", outcome, err)
	}
}
