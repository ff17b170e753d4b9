package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"templeseva/internal/domain"
)

type PaymentRecordRepository struct {
	db *gorm.DB
}

func NewPaymentRecordRepository(db *gorm.DB) *PaymentRecordRepository {
	return &PaymentRecordRepository{db: db}
}

func (r *PaymentRecordRepository) Create(ctx context.Context, p *domain.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRecordRepository) GetByID(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	var p domain.PaymentRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRecordRepository) GetByExternalOrderID(ctx context.Context, orderID string) (*domain.PaymentRecord, error) {
	var p domain.PaymentRecord
	if err := r.db.WithContext(ctx).Where("external_order_id = ?", orderID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkPending binds the gateway order id and moves created -> pending.
// Only records still in created are touched, so a retried checkout cannot
// clobber a record a webhook already advanced.
func (r *PaymentRecordRepository) MarkPending(ctx context.Context, id, externalOrderID string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.PaymentRecord{}).
		Where("id = ? AND status = ?", id, domain.PaymentStatusCreated).
		Updates(map[string]interface{}{
			"status":            domain.PaymentStatusPending,
			"external_order_id": externalOrderID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionResult reports what the transition transaction decided.
// FireHook is true for exactly one caller per record, ever.
type TransitionResult struct {
	Status     domain.PaymentStatus
	Applied    bool
	Idempotent bool
	FireHook   bool
}

// Transition is the single code path for every state change driven by
// gateway evidence (callback, webhook, sweeper). The row is locked for the
// duration so concurrent deliveries serialize per record; the hook_fired
// flag is committed together with the status write.
func (r *PaymentRecordRepository) Transition(ctx context.Context, id string, target domain.PaymentStatus, ev domain.TransitionEvidence) (TransitionResult, error) {
	var res TransitionResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec domain.PaymentRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&rec).Error; err != nil {
			return err
		}
		res.Status = rec.Status

		// Re-delivery of a terminal notification is a success no-op.
		if rec.Status == target && rec.Status.Terminal() {
			res.Idempotent = true
			return nil
		}
		// Unreachable targets (including any attempt to leave a terminal
		// state, so out-of-order failed-after-captured) are rejected as a
		// no-op that reports the current status.
		if !rec.Status.CanTransitionTo(target) {
			return nil
		}

		// The locally recorded amount is authoritative; gateway evidence
		// must match it exactly or the record is parked for manual review.
		if ev.AmountMinorUnits != 0 && ev.AmountMinorUnits != rec.AmountMinorUnits {
			return domain.ErrAmountMismatch
		}
		if ev.Currency != "" && ev.Currency != rec.Currency {
			return domain.ErrAmountMismatch
		}

		updates := map[string]interface{}{"status": target}

		if ev.ExternalPaymentID != "" {
			if rec.ExternalPaymentID != nil && *rec.ExternalPaymentID != ev.ExternalPaymentID {
				return domain.ErrPaymentRefConflict
			}
			if rec.ExternalPaymentID == nil {
				updates["external_payment_id"] = ev.ExternalPaymentID
			}
		}

		switch target {
		case domain.PaymentStatusCaptured:
			updates["captured_at"] = time.Now().UTC()
			if !rec.HookFired {
				updates["hook_fired"] = true
				res.FireHook = true
			}
		case domain.PaymentStatusFailed:
			updates["failure_reason"] = ev.Reason
		}

		if err := tx.Model(&domain.PaymentRecord{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		res.Applied = true
		res.Status = target
		return nil
	})
	// Integrity rejections roll the transaction back; the review flag is a
	// separate write so it survives.
	if errors.Is(err, domain.ErrAmountMismatch) || errors.Is(err, domain.ErrPaymentRefConflict) {
		if ferr := r.flagForReview(ctx, id); ferr != nil {
			return res, ferr
		}
	}
	return res, err
}

func (r *PaymentRecordRepository) flagForReview(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.PaymentRecord{}).Where("id = ?", id).Update("flagged_for_review", true).Error
}

func (r *PaymentRecordRepository) AppendEvent(ctx context.Context, ev *domain.GatewayEvent) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *PaymentRecordRepository) ListEvents(ctx context.Context, recordID string) ([]domain.GatewayEvent, error) {
	var events []domain.GatewayEvent
	err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

// ListStalePending returns pending records last updated before the cutoff,
// oldest first, capped at limit.
func (r *PaymentRecordRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentRecord, error) {
	var records []domain.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.PaymentStatusPending, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *PaymentRecordRepository) IncrementSweepAttempts(ctx context.Context, id string) (int, error) {
	err := r.db.WithContext(ctx).
		Model(&domain.PaymentRecord{}).
		Where("id = ?", id).
		Update("sweep_attempts", gorm.Expr("sweep_attempts + 1")).Error
	if err != nil {
		return 0, err
	}
	var rec domain.PaymentRecord
	if err := r.db.WithContext(ctx).Select("sweep_attempts").Where("id = ?", id).First(&rec).Error; err != nil {
		return 0, err
	}
	return rec.SweepAttempts, nil
}
