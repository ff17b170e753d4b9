package domain

import "time"

// Registration is the downstream effect of a captured event-registration
// payment. RecordID is unique so replays of the captured hook cannot
// double-register.
type Registration struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	RecordID         string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"record_id"`
	EventRef         string    `gorm:"type:varchar(128);not null;index" json:"event_ref"`
	AmountMinorUnits int64     `gorm:"not null" json:"amount_minor_units"`
	CreatedAt        time.Time `json:"created_at"`
}

func (Registration) TableName() string { return "registrations" }

// DonationEntry is an append-only ledger row for captured donations.
type DonationEntry struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	RecordID         string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"record_id"`
	DevoteeRef       string    `gorm:"type:varchar(128);not null;index" json:"devotee_ref"`
	Purpose          string    `gorm:"type:varchar(64);not null" json:"purpose"`
	AmountMinorUnits int64     `gorm:"not null" json:"amount_minor_units"`
	Currency         string    `gorm:"type:varchar(8);not null" json:"currency"`
	CreatedAt        time.Time `json:"created_at"`
}

func (DonationEntry) TableName() string { return "donation_entries" }
