package model

// BANTField identifies one of the four qualification dimensions.
type BANTField string

const (
	FieldBudget    BANTField = "budget"
	FieldAuthority BANTField = "authority"
	FieldNeed      BANTField = "need"
	FieldTimeline  BANTField = "timeline"
)

// BANT is an immutable snapshot of the four captured values. Unset
// fields are empty strings.
type BANT struct {
	Budget    string `json:"budget" firestore:"budget"`
	Authority string `json:"authority" firestore:"authority"`
	Need      string `json:"need" firestore:"need"`
	Timeline  string `json:"timeline" firestore:"timeline"`
}

// BANTState tracks the four qualification fields of one conversation.
// Each field transitions unset -> set exactly once per cycle: a second
// Set of the same field is rejected and the first captured value is
// kept. Reset starts a new cycle.
//
// Not safe for concurrent use; the owning Session serializes access.
type BANTState struct {
	values map[BANTField]string
}

func NewBANTState() *BANTState {
	return &BANTState{values: make(map[BANTField]string)}
}

// Set captures a field value. Returns false when the field was already
// set in this cycle (the existing value wins) or the value is empty.
func (s *BANTState) Set(field BANTField, value string) bool {
	if value == "" {
		return false
	}
	if _, ok := s.values[field]; ok {
		return false
	}
	s.values[field] = value
	return true
}

// Get returns the captured value and whether the field is set.
func (s *BANTState) Get(field BANTField) (string, bool) {
	v, ok := s.values[field]
	return v, ok
}

// IsComplete reports whether all four fields have been captured.
// Completeness is advisory: it does not imply the values conform to
// the tenant policy.
func (s *BANTState) IsComplete() bool {
	return len(s.values) == 4
}

// Reset discards all captured values and starts a new cycle.
func (s *BANTState) Reset() {
	s.values = make(map[BANTField]string)
}

// Snapshot returns the current values as an immutable BANT.
func (s *BANTState) Snapshot() BANT {
	return BANT{
		Budget:    s.values[FieldBudget],
		Authority: s.values[FieldAuthority],
		Need:      s.values[FieldNeed],
		Timeline:  s.values[FieldTimeline],
	}
}
