package model

import "time"

// SessionKey identifies one conversation: a (tenant, contact) pair.
type SessionKey string

func NewSessionKey(tenantID, contactID string) SessionKey {
	return SessionKey(tenantID + "_" + contactID)
}

// SessionState is the qualification state machine of one conversation.
type SessionState string

const (
	StateActive           SessionState = "ACTIVE"
	StateQualified        SessionState = "QUALIFIED"
	StateDisqualified     SessionState = "DISQUALIFIED"
	StateMeetingScheduled SessionState = "MEETING_SCHEDULED"
	StateClosed           SessionState = "CLOSED"
)

// InboundMessage is one message event received from the transport.
type InboundMessage struct {
	TenantID  string     `json:"tenant_id"`
	ContactID string     `json:"phone"`
	Text      string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Reply is what the core hands back to the transport for delivery.
type Reply struct {
	ContactID        string     `json:"phone"`
	ResponseText     string     `json:"response"`
	SessionKey       SessionKey `json:"session_id"`
	Qualified        bool       `json:"qualified"`
	MeetingScheduled bool       `json:"meeting_scheduled"`
}

// QualificationSnapshot is the introspectable state of one session.
type QualificationSnapshot struct {
	TenantID         string       `json:"tenant_id"`
	ContactID        string       `json:"prospect_phone"`
	State            SessionState `json:"state"`
	BANT             BANT         `json:"bant_data"`
	IsComplete       bool         `json:"is_complete"`
	Qualified        *bool        `json:"qualified"` // nil until the agent reports a status
	MeetingScheduled bool         `json:"meeting_scheduled"`
	LastActivity     time.Time    `json:"last_activity"`
}

// ToolInvocation is one structured side-effecting call the
// conversational collaborator elected to make while replying.
type ToolInvocation struct {
	Name     string         `json:"name"`
	Args     map[string]any `json:"args"`
	Response map[string]any `json:"response"`
}
