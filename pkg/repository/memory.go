package repository

import (
	"context"
	"sync"
	"time"

	"github.com/bantam-dev/bantam/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Memory is an in-memory Repository for tests and prototype runs.
// All state is lost when the process exits.
type Memory struct {
	mu        sync.Mutex
	prospects []*model.ProspectRecord
	meetings  []*model.Meeting
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (r *Memory) SaveProspect(ctx context.Context, input *SaveProspectInput) (*model.ProspectRecord, error) {
	if err := input.Status.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid prospect status", goerr.V("status", input.Status))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &model.ProspectRecord{
		ID:        model.NewProspectID(int64(len(r.prospects) + 1)),
		Name:      input.Name,
		Phone:     input.Phone,
		Email:     input.Email,
		BANT:      input.BANT,
		Status:    input.Status,
		Notes:     input.Notes,
		CreatedAt: r.now(),
		Source:    model.SourceInbound,
	}
	r.prospects = append(r.prospects, rec)

	return rec, nil
}

func (r *Memory) FindProspectByPhone(ctx context.Context, phone string) (*model.ProspectRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Insertion order scan: earliest record wins for duplicate phones
	for _, p := range r.prospects {
		if p.Phone == phone {
			return p, nil
		}
	}
	return nil, nil
}

func (r *Memory) ListProspects(ctx context.Context, offset, limit int) ([]*model.ProspectRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if offset >= len(r.prospects) {
		return nil, nil
	}
	end := len(r.prospects)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*model.ProspectRecord, end-offset)
	copy(out, r.prospects[offset:end])
	return out, nil
}

func (r *Memory) CheckAvailability(ctx context.Context, slot model.Slot) (*model.Availability, error) {
	if err := slot.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.availabilityLocked(slot), nil
}

func (r *Memory) availabilityLocked(slot model.Slot) *model.Availability {
	taken := make(map[string]bool)
	var conflict *model.Meeting
	for _, m := range r.meetings {
		if m.Slot.Date == slot.Date {
			taken[m.Slot.Time] = true
			if m.Slot.Time == slot.Time {
				conflict = m
			}
		}
	}

	if conflict == nil {
		return &model.Availability{Available: true}
	}
	return &model.Availability{
		Available:      false,
		Conflicting:    conflict,
		SuggestedSlots: suggestTimes(taken),
	}
}

func (r *Memory) ScheduleMeeting(ctx context.Context, input *ScheduleMeetingInput) (*model.Meeting, error) {
	if err := input.Slot.Validate(); err != nil {
		return nil, err
	}
	normalizeMeetingInput(input)

	// Check and insert under one lock so concurrent bookings of the
	// same slot cannot both pass the availability probe.
	r.mu.Lock()
	defer r.mu.Unlock()

	if avail := r.availabilityLocked(input.Slot); !avail.Available {
		return nil, goerr.Wrap(model.ErrSchedulingConflict, "slot already booked",
			goerr.V("date", input.Slot.Date), goerr.V("time", input.Slot.Time))
	}

	id := model.NewMeetingID(int64(len(r.meetings) + 1))
	m := &model.Meeting{
		ID:              id,
		ProspectName:    input.ProspectName,
		ProspectPhone:   input.ProspectPhone,
		ProspectEmail:   input.ProspectEmail,
		Slot:            input.Slot,
		DurationMinutes: input.DurationMinutes,
		MeetingType:     input.MeetingType,
		Status:          model.MeetingStatusScheduled,
		CreatedAt:       r.now(),
		MeetingLink:     model.MeetingLink(id),
	}
	r.meetings = append(r.meetings, m)

	return m, nil
}

func (r *Memory) ListMeetings(ctx context.Context, from time.Time, days int) ([]*model.Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lo := from.Format(model.DateLayout)
	hi := from.AddDate(0, 0, days).Format(model.DateLayout)

	var out []*model.Meeting
	for _, m := range r.meetings {
		if m.Slot.Date >= lo && m.Slot.Date <= hi {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *Memory) Close() error {
	return nil
}
