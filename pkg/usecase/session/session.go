package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bantam-dev/bantam/pkg/adapter"
	"github.com/bantam-dev/bantam/pkg/model"
	"github.com/bantam-dev/bantam/pkg/policy"
	"github.com/bantam-dev/bantam/pkg/tool"
	"github.com/bantam-dev/bantam/pkg/tool/calendar"
	"github.com/bantam-dev/bantam/pkg/tool/crm"
	"github.com/bantam-dev/bantam/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const (
	// apologyReply is the fixed user-facing text for any collaborator
	// failure. Raw error text never reaches the prospect.
	apologyReply = "Sorry, I ran into a technical problem. Could you say that again?"

	// emptyReply covers the rare round that produces no text at all
	emptyReply = "Sorry, I couldn't process your message."

	maxToolIterations  = 16
	defaultSendTimeout = 60 * time.Second
)

// Session holds the conversational and qualification state for one
// (tenant, contact) pair. All mutation goes through Send, which
// serializes concurrent messages for the same contact.
type Session struct {
	key       model.SessionKey
	tenantID  string
	contactID string
	policy    *model.TenantPolicy

	gemini    adapter.Gemini
	tools     *tool.Registry
	evaluator *policy.Evaluator
	timeout   time.Duration

	systemPrompt string

	mu               sync.Mutex
	contents         []*genai.Content
	bant             *model.BANTState
	state            model.SessionState
	qualified        *bool
	meetingScheduled bool
	lastActivity     time.Time
}

// New creates a session for one contact. The evaluator is optional;
// when present every agent-reported qualification is cross-checked
// against the tenant policy and divergences are logged.
func New(ctx context.Context, tenantID, contactID string, pol *model.TenantPolicy, gemini adapter.Gemini, tools *tool.Registry, evaluator *policy.Evaluator) (*Session, error) {
	systemPrompt, err := buildSystemPrompt(pol, tools.Prompts(ctx))
	if err != nil {
		return nil, err
	}

	return &Session{
		key:          model.NewSessionKey(tenantID, contactID),
		tenantID:     tenantID,
		contactID:    contactID,
		policy:       pol,
		gemini:       gemini,
		tools:        tools,
		evaluator:    evaluator,
		timeout:      defaultSendTimeout,
		systemPrompt: systemPrompt,
		bant:         model.NewBANTState(),
		state:        model.StateActive,
		lastActivity: time.Now(),
	}, nil
}

func (s *Session) Key() model.SessionKey { return s.key }
func (s *Session) TenantID() string      { return s.tenantID }
func (s *Session) ContactID() string     { return s.contactID }

// Send dispatches one inbound message to the conversational agent and
// applies the observed tool invocations to the session state. On a
// collaborator failure the state is left untouched and a fixed apology
// is returned, so the prospect can simply retry.
func (s *Session) Send(ctx context.Context, text string) (*model.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == model.StateClosed {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "session is closed", goerr.V("session_key", s.key))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	finalText, invocations, contents, err := s.runRound(ctx, text)
	if err != nil {
		logging.From(ctx).Error("conversation round failed",
			"session_key", s.key, "error", err)
		return s.replyLocked(apologyReply), nil
	}

	// Commit: history and observations only land after a fully
	// successful round
	s.contents = contents
	s.applyObservations(ctx, invocations)
	s.lastActivity = time.Now()

	if finalText == "" {
		finalText = emptyReply
	}
	return s.replyLocked(finalText), nil
}

// runRound drives the generate / tool-call loop until the agent stops
// requesting function calls.
func (s *Session) runRound(ctx context.Context, text string) (string, []model.ToolInvocation, []*genai.Content, error) {
	contents := make([]*genai.Content, len(s.contents), len(s.contents)+2)
	copy(contents, s.contents)
	contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(s.systemPrompt, ""),
		Tools:             s.tools.Specs(),
	}

	var invocations []model.ToolInvocation
	var finalText string

	for i := 0; i < maxToolIterations; i++ {
		resp, err := s.gemini.GenerateContent(ctx, contents, config)
		if err != nil {
			return "", nil, nil, goerr.Wrap(model.ErrCollaboratorFailure, err.Error(),
				goerr.V("session_key", s.key))
		}

		hasFunctionCall := false
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			contents = append(contents, candidate.Content)

			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					finalText = part.Text
				}
				if part.FunctionCall == nil {
					continue
				}
				hasFunctionCall = true

				funcResp, execErr := s.tools.Execute(ctx, *part.FunctionCall)
				if execErr != nil {
					funcResp = &genai.FunctionResponse{
						Name:     part.FunctionCall.Name,
						Response: map[string]any{"error": execErr.Error()},
					}
				}

				invocations = append(invocations, model.ToolInvocation{
					Name:     part.FunctionCall.Name,
					Args:     part.FunctionCall.Args,
					Response: funcResp.Response,
				})

				contents = append(contents, &genai.Content{
					Role:  genai.RoleUser,
					Parts: []*genai.Part{{FunctionResponse: funcResp}},
				})
			}
		}

		if !hasFunctionCall {
			break
		}
	}

	return finalText, invocations, contents, nil
}

// applyObservations updates the state machine from the tool calls the
// agent made. Only successful calls count; the stores are the source
// of truth for what actually persisted.
func (s *Session) applyObservations(ctx context.Context, invocations []model.ToolInvocation) {
	logger := logging.From(ctx)

	for _, inv := range invocations {
		success, _ := inv.Response["success"].(bool)

		switch inv.Name {
		case crm.FuncSaveToCRM:
			if !success {
				continue
			}
			s.observeSave(ctx, inv)

		case calendar.FuncScheduleMeeting:
			if !success {
				continue
			}
			s.meetingScheduled = true
			s.state = model.StateMeetingScheduled
			logger.Info("meeting scheduled",
				"session_key", s.key,
				"meeting_id", inv.Response["meeting_id"])
		}
	}
}

func (s *Session) observeSave(ctx context.Context, inv model.ToolInvocation) {
	logger := logging.From(ctx)

	argStr := func(key string) string {
		v, _ := inv.Args[key].(string)
		return v
	}

	s.bant.Set(model.FieldBudget, argStr("budget"))
	s.bant.Set(model.FieldAuthority, argStr("authority"))
	s.bant.Set(model.FieldNeed, argStr("need"))
	s.bant.Set(model.FieldTimeline, argStr("timeline"))

	// The agent's reported status is authoritative for the session flag
	claim := argStr("qualification_status") == string(model.StatusQualified)
	s.qualified = &claim

	if s.state != model.StateMeetingScheduled {
		if claim {
			s.state = model.StateQualified
		} else {
			s.state = model.StateDisqualified
		}
	}

	logger.Info("prospect saved",
		"session_key", s.key,
		"prospect_id", inv.Response["prospect_id"],
		"qualified", claim)

	if s.evaluator == nil {
		return
	}

	verdict, err := s.evaluator.Evaluate(ctx, s.policy, s.bant.Snapshot())
	if err != nil {
		logger.Warn("policy verdict evaluation failed", "session_key", s.key, "error", err)
		return
	}
	if verdict.Qualified != claim {
		logger.Warn("qualification verdict divergence",
			"session_key", s.key,
			"agent_claim", claim,
			"policy_verdict", verdict.Qualified,
			"reasons", verdict.Reasons)
	}
}

func (s *Session) replyLocked(text string) *model.Reply {
	return &model.Reply{
		ContactID:        s.contactID,
		ResponseText:     text,
		SessionKey:       s.key,
		Qualified:        s.qualified != nil && *s.qualified,
		MeetingScheduled: s.meetingScheduled,
	}
}

// Snapshot returns the current qualification state for introspection
func (s *Session) Snapshot() model.QualificationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := model.QualificationSnapshot{
		TenantID:         s.tenantID,
		ContactID:        s.contactID,
		State:            s.state,
		BANT:             s.bant.Snapshot(),
		IsComplete:       s.bant.IsComplete(),
		MeetingScheduled: s.meetingScheduled,
		LastActivity:     s.lastActivity,
	}
	if s.qualified != nil {
		q := *s.qualified
		snap.Qualified = &q
	}
	return snap
}

// LastActivity reports when the session last completed a round
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// TranscriptEntry is one archived line of the conversation.
type TranscriptEntry struct {
	Role          string   `json:"role"`
	Text          string   `json:"text,omitempty"`
	FunctionCalls []string `json:"function_calls,omitempty"`
}

// Transcript extracts the conversation for archival
func (s *Session) Transcript() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TranscriptEntry, 0, len(s.contents))
	for _, c := range s.contents {
		entry := TranscriptEntry{Role: c.Role}
		var texts []string
		for _, p := range c.Parts {
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
			if p.FunctionCall != nil {
				entry.FunctionCalls = append(entry.FunctionCalls, p.FunctionCall.Name)
			}
		}
		entry.Text = strings.Join(texts, "\n")
		if entry.Text == "" && len(entry.FunctionCalls) == 0 {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Close marks the session terminated. Further Sends fail.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = model.StateClosed
}
