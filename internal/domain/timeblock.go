package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type TimeBlockStatus string

const (
	TimeBlockStatusHeld   TimeBlockStatus = "held"
	TimeBlockStatusBooked TimeBlockStatus = "booked"
)

// HoldTTL is how long a soft reservation blocks a provider's slot before it
// becomes inert.
const HoldTTL = 10 * time.Minute

// TimeBlock is the durable reservation record for one occurrence window on
// one provider's calendar. A held block past its expiry is logically inert:
// availability checks ignore it and it may be garbage-collected, but nothing
// depends on that cleanup running.
type TimeBlock struct {
	bun.BaseModel `bun:"table:time_blocks"`

	ID           uuid.UUID       `bun:"id,pk,type:uuid"`
	ProviderID   string          `bun:"provider_id,notnull"`
	EngagementID uuid.UUID       `bun:"engagement_id,notnull,type:uuid"`
	Status       TimeBlockStatus `bun:"status,notnull"`

	ServiceStart time.Time `bun:"service_start,notnull"`
	ServiceEnd   time.Time `bun:"service_end,notnull"`
	PaddedStart  time.Time `bun:"padded_start,notnull"`
	PaddedEnd    time.Time `bun:"padded_end,notnull"`

	HoldExpiresAt *time.Time `bun:"hold_expires_at"`

	OccurrenceIndex int  `bun:"occurrence_index,notnull"`
	IsRecurring     bool `bun:"is_recurring,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (b *TimeBlock) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}

// ActiveAt reports whether the block still commits the provider's time at
// the given instant. Expired holds are never a conflict.
func (b *TimeBlock) ActiveAt(now time.Time) bool {
	switch b.Status {
	case TimeBlockStatusBooked:
		return true
	case TimeBlockStatusHeld:
		return b.HoldExpiresAt == nil || !b.HoldExpiresAt.Before(now)
	}
	return false
}

// Window returns the block's padded window for overlap checks.
func (b *TimeBlock) Window() Window {
	return Window{
		ServiceStart: b.ServiceStart,
		ServiceEnd:   b.ServiceEnd,
		PaddedStart:  b.PaddedStart,
		PaddedEnd:    b.PaddedEnd,
	}
}
