package fulfillment

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"templeseva/internal/domain"
)

// Purposes the payment core routes to this collaborator. Anything else is
// ledgered as a plain donation.
const (
	PurposeEventRegistration = "event-registration"
	PurposeDonation          = "donation"
)

// Service is the downstream collaborator behind the captured-payment hook.
// The payment core guarantees at-most-once invocation per record; the unique
// record_id columns here are belt-level protection for manual replays.
type Service struct {
	db      *gorm.DB
	loggerf func(format string, args ...interface{})
}

func NewService(db *gorm.DB, loggerf func(format string, args ...interface{})) *Service {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Service{db: db, loggerf: loggerf}
}

func (s *Service) OnPaymentCaptured(ctx context.Context, cp domain.CapturedPayment) error {
	switch cp.Purpose {
	case PurposeEventRegistration:
		return s.registerForEvent(ctx, cp)
	default:
		return s.recordDonation(ctx, cp)
	}
}

func (s *Service) registerForEvent(ctx context.Context, cp domain.CapturedPayment) error {
	reg := &domain.Registration{
		RecordID:         cp.RecordID,
		EventRef:         cp.SubjectRef,
		AmountMinorUnits: cp.AmountMinorUnits,
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "record_id"}}, DoNothing: true}).
		Create(reg)
	if res.Error != nil {
		return fmt.Errorf("register for event %s: %w", cp.SubjectRef, res.Error)
	}
	if res.RowsAffected == 0 {
		s.loggerf("level=info msg=registration already exists record_id=%s event_ref=%s", cp.RecordID, cp.SubjectRef)
		return nil
	}
	s.loggerf("level=info msg=event registration created record_id=%s event_ref=%s amount=%d", cp.RecordID, cp.SubjectRef, cp.AmountMinorUnits)
	return nil
}

func (s *Service) recordDonation(ctx context.Context, cp domain.CapturedPayment) error {
	entry := &domain.DonationEntry{
		RecordID:         cp.RecordID,
		DevoteeRef:       cp.SubjectRef,
		Purpose:          cp.Purpose,
		AmountMinorUnits: cp.AmountMinorUnits,
		Currency:         cp.Currency,
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "record_id"}}, DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		return fmt.Errorf("ledger donation for %s: %w", cp.SubjectRef, res.Error)
	}
	if res.RowsAffected == 0 {
		s.loggerf("level=info msg=donation entry already exists record_id=%s", cp.RecordID)
		return nil
	}
	s.loggerf("level=info msg=donation ledgered record_id=%s devotee_ref=%s purpose=%s amount=%d", cp.RecordID, cp.SubjectRef, cp.Purpose, cp.AmountMinorUnits)
	return nil
}
