package model

import (
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

type MeetingID string

// NewMeetingID builds the sequential store-assigned id for the n-th
// meeting (1-based).
func NewMeetingID(n int64) MeetingID {
	return MeetingID(fmt.Sprintf("meeting_%d", n))
}

// MeetingLink derives the placeholder conference link for a meeting.
func MeetingLink(id MeetingID) string {
	return "https://meet.google.com/lookup/" + string(id)
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	DefaultDurationMinutes = 30
	DefaultMeetingType     = "discovery call"
)

// Slot is one bookable meeting start: a calendar date (YYYY-MM-DD)
// plus a time of day (HH:MM). At most one meeting may occupy a slot.
type Slot struct {
	Date string `json:"date" firestore:"date"`
	Time string `json:"time" firestore:"time"`
}

// Key returns the canonical identity of the slot.
func (s Slot) Key() string {
	return s.Date + "_" + s.Time
}

// Validate checks the date and time formats
func (s Slot) Validate() error {
	if _, err := time.Parse(DateLayout, s.Date); err != nil {
		return goerr.Wrap(ErrInvalidSlot, "invalid date, expected YYYY-MM-DD", goerr.V("date", s.Date))
	}
	if _, err := time.Parse(TimeLayout, s.Time); err != nil {
		return goerr.Wrap(ErrInvalidSlot, "invalid time, expected HH:MM", goerr.V("time", s.Time))
	}
	return nil
}

const MeetingStatusScheduled = "scheduled"

// Meeting is one persisted booking.
type Meeting struct {
	ID              MeetingID `json:"id" firestore:"id"`
	ProspectName    string    `json:"prospect_name" firestore:"prospect_name"`
	ProspectPhone   string    `json:"prospect_phone" firestore:"prospect_phone"`
	ProspectEmail   string    `json:"prospect_email" firestore:"prospect_email"`
	Slot            Slot      `json:"slot" firestore:"slot"`
	DurationMinutes int       `json:"duration_minutes" firestore:"duration_minutes"`
	MeetingType     string    `json:"meeting_type" firestore:"meeting_type"`
	Status          string    `json:"status" firestore:"status"`
	CreatedAt       time.Time `json:"created_at" firestore:"created_at"`
	MeetingLink     string    `json:"meeting_link" firestore:"meeting_link"`
}

// Availability is the outcome of probing a slot.
type Availability struct {
	Available      bool
	Conflicting    *Meeting
	SuggestedSlots []string
}
