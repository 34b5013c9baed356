package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TaskItem is one line-item of work inside an engagement, with its named
// duration in minutes.
type TaskItem struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Engagement is a client's request for one-time or recurring service. Members
// of a recurring series each carry the shared series id and their zero-based
// index; index 0 is the root and is never regenerated.
type Engagement struct {
	bun.BaseModel `bun:"table:engagements"`

	ID         uuid.UUID  `bun:"id,pk,type:uuid"`
	ClientID   string     `bun:"client_id,notnull"`
	ProviderID string     `bun:"provider_id"`
	Category   string     `bun:"category,notnull"`
	Address    string     `bun:"address,notnull"`
	Tasks      []TaskItem `bun:"tasks,type:jsonb"`

	ScheduledDate time.Time        `bun:"scheduled_date,notnull"`
	Status        EngagementStatus `bun:"status,notnull"`

	IsRecurring       bool          `bun:"is_recurring,notnull"`
	PreferredWeekday  *int16        `bun:"preferred_weekday"`
	FrequencyUnit     FrequencyUnit `bun:"frequency_unit"`
	FrequencyInterval int           `bun:"frequency_interval"`
	HorizonCount      int           `bun:"horizon_count"`

	RecurrenceSeriesID *uuid.UUID `bun:"recurrence_series_id,type:uuid"`
	RecurrenceIndex    *int       `bun:"recurrence_index"`

	ReminderSent bool `bun:"reminder_sent,notnull,default:false"`

	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (e *Engagement) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if e.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			e.ID = id
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		e.UpdatedAt = now
	}
	return nil
}

// TotalTaskDuration sums the line-item durations; this is the length of the
// unpadded service window.
func (e *Engagement) TotalTaskDuration() time.Duration {
	total := 0
	for _, t := range e.Tasks {
		total += t.DurationMinutes
	}
	return time.Duration(total) * time.Minute
}

// IsSeriesRoot reports whether this engagement is the first occurrence of its
// series. A one-off engagement is trivially its own root.
func (e *Engagement) IsSeriesRoot() bool {
	return e.RecurrenceIndex == nil || *e.RecurrenceIndex == 0
}

// SeriesID returns the engagement's series id, defaulting to its own id when
// none has been assigned yet.
func (e *Engagement) SeriesID() uuid.UUID {
	if e.RecurrenceSeriesID != nil && *e.RecurrenceSeriesID != uuid.Nil {
		return *e.RecurrenceSeriesID
	}
	return e.ID
}

// Schedule builds the recurrence descriptor used to project this
// engagement's occurrences.
func (e *Engagement) Schedule() (Schedule, error) {
	if !e.IsRecurring {
		return Schedule{}, errors.New("engagement is not recurring")
	}
	var preferred *time.Weekday
	if e.PreferredWeekday != nil {
		wd := time.Weekday(*e.PreferredWeekday)
		preferred = &wd
	}
	return Schedule{
		Start:            e.ScheduledDate,
		PreferredWeekday: preferred,
		Unit:             e.FrequencyUnit,
		Interval:         e.FrequencyInterval,
		Count:            e.HorizonCount,
	}, nil
}

// OccurrenceWindows projects the padded windows this engagement needs a
// provider to be free for: a single window for a one-off request, the full
// horizon for a recurring one.
func (e *Engagement) OccurrenceWindows() ([]Window, error) {
	duration := e.TotalTaskDuration()
	if duration <= 0 {
		return nil, errors.New("engagement has no task durations")
	}

	if !e.IsRecurring {
		return []Window{NewWindow(e.ScheduledDate, duration)}, nil
	}

	schedule, err := e.Schedule()
	if err != nil {
		return nil, err
	}
	instants, err := ProjectOccurrences(schedule)
	if err != nil {
		return nil, err
	}

	windows := make([]Window, 0, len(instants))
	for _, at := range instants {
		windows = append(windows, NewWindow(at, duration))
	}
	return windows, nil
}
