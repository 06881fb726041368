package repository

import (
	"context"
	"time"

	"github.com/bantam-dev/bantam/pkg/model"
)

// SaveProspectInput contains the fields of one qualification outcome.
type SaveProspectInput struct {
	Name   string
	Phone  string
	Email  string
	BANT   model.BANT
	Status model.QualificationStatus
	Notes  string
}

// ScheduleMeetingInput contains the fields of one booking request.
type ScheduleMeetingInput struct {
	ProspectName    string
	ProspectPhone   string
	ProspectEmail   string
	Slot            model.Slot
	DurationMinutes int
	MeetingType     string
}

// Repository persists the two append-only collections: prospect
// qualification records and booked meetings.
type Repository interface {
	// SaveProspect assigns the next sequential id and appends the
	// record. Records are never mutated or deleted; duplicate phones
	// produce duplicate records.
	SaveProspect(ctx context.Context, input *SaveProspectInput) (*model.ProspectRecord, error)

	// FindProspectByPhone scans all records in insertion order and
	// returns the earliest match, or nil when no record exists.
	FindProspectByPhone(ctx context.Context, phone string) (*model.ProspectRecord, error)

	// ListProspects retrieves records in insertion order
	ListProspects(ctx context.Context, offset, limit int) ([]*model.ProspectRecord, error)

	// CheckAvailability probes a slot. When occupied it reports the
	// conflicting meeting and up to three alternative times on the
	// same date that are still free.
	CheckAvailability(ctx context.Context, slot model.Slot) (*model.Availability, error)

	// ScheduleMeeting books a slot atomically: the insert fails with
	// model.ErrSchedulingConflict when the slot is taken, and no two
	// bookings can ever share a slot even under concurrent callers.
	ScheduleMeeting(ctx context.Context, input *ScheduleMeetingInput) (*model.Meeting, error)

	// ListMeetings retrieves meetings scheduled within [from, from+days]
	ListMeetings(ctx context.Context, from time.Time, days int) ([]*model.Meeting, error)

	// Close releases underlying resources
	Close() error
}

// CandidateTimes is the fixed set of meeting starts offered as
// alternatives when a requested slot is occupied.
var CandidateTimes = []string{"10:00", "14:00", "16:00"}

const maxSuggestions = 3

// suggestTimes returns candidate times not present in taken, capped at
// maxSuggestions.
func suggestTimes(taken map[string]bool) []string {
	out := make([]string, 0, maxSuggestions)
	for _, t := range CandidateTimes {
		if taken[t] {
			continue
		}
		out = append(out, t)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

func normalizeMeetingInput(input *ScheduleMeetingInput) {
	if input.DurationMinutes <= 0 {
		input.DurationMinutes = model.DefaultDurationMinutes
	}
	if input.MeetingType == "" {
		input.MeetingType = model.DefaultMeetingType
	}
}
