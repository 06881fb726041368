package model

import (
	"fmt"
	"time"
)

type ProspectID string

// NewProspectID builds the sequential store-assigned id for the n-th
// record (1-based).
func NewProspectID(n int64) ProspectID {
	return ProspectID(fmt.Sprintf("prospect_%d", n))
}

type QualificationStatus string

const (
	StatusQualified    QualificationStatus = "QUALIFIED"
	StatusNotQualified QualificationStatus = "NOT_QUALIFIED"
)

// Validate checks if the qualification status is valid
func (s QualificationStatus) Validate() error {
	switch s {
	case StatusQualified, StatusNotQualified:
		return nil
	default:
		return ErrInvalidStatus
	}
}

// SourceInbound marks records captured from the inbound messaging channel.
const SourceInbound = "whatsapp_inbound"

// ProspectRecord is one persisted qualification outcome. Records are
// append-only: repeated saves for the same phone produce multiple
// records and existing records are never mutated or deleted.
type ProspectRecord struct {
	ID        ProspectID          `json:"id" firestore:"id"`
	Name      string              `json:"name" firestore:"name"`
	Phone     string              `json:"phone" firestore:"phone"`
	Email     string              `json:"email" firestore:"email"`
	BANT      BANT                `json:"bant" firestore:"bant"`
	Status    QualificationStatus `json:"qualification_status" firestore:"qualification_status"`
	Notes     string              `json:"notes" firestore:"notes"`
	CreatedAt time.Time           `json:"created_at" firestore:"created_at"`
	Source    string              `json:"source" firestore:"source"`
}
