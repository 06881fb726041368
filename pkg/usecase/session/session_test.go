package session_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/bantam-dev/bantam/pkg/adapter"
	"github.com/bantam-dev/bantam/pkg/model"
	"github.com/bantam-dev/bantam/pkg/policy"
	"github.com/bantam-dev/bantam/pkg/repository"
	"github.com/bantam-dev/bantam/pkg/tool"
	"github.com/bantam-dev/bantam/pkg/tool/calendar"
	"github.com/bantam-dev/bantam/pkg/tool/crm"
	"github.com/bantam-dev/bantam/pkg/usecase/session"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

// mockGemini replays a scripted sequence of responses
type mockGemini struct {
	mu     sync.Mutex
	script []func() (*genai.GenerateContentResponse, error)
	calls  int
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.calls >= len(m.script) {
		return textResponse("I have nothing more to say."), nil
	}
	step := m.script[m.calls]
	m.calls++
	return step()
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: text}},
			},
		}},
	}
}

func callResponse(name string, args map[string]any) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{Name: name, Args: args}}},
			},
		}},
	}
}

func respond(resp *genai.GenerateContentResponse) func() (*genai.GenerateContentResponse, error) {
	return func() (*genai.GenerateContentResponse, error) { return resp, nil }
}

func fail(err error) func() (*genai.GenerateContentResponse, error) {
	return func() (*genai.GenerateContentResponse, error) { return nil, err }
}

// memStorage archives transcripts in memory for assertions
type memStorage struct {
	mu      sync.Mutex
	objects map[string]*bytes.Buffer
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string]*bytes.Buffer)}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (s *memStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := &bytes.Buffer{}
	s.objects[key] = buf
	return nopWriteCloser{buf}, nil
}

func (s *memStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

func newRegistry(t *testing.T, gemini adapter.Gemini, storage adapter.Storage) *session.Registry {
	t.Helper()

	catalog, err := policy.NewCatalog("")
	gt.NoError(t, err)

	evaluator, err := policy.NewEvaluator(context.Background())
	gt.NoError(t, err)

	client := &tool.Client{Repo: repository.NewMemory()}
	tools := tool.New(crm.New(client), calendar.New(client))

	return session.NewRegistry(session.RegistryConfig{
		Catalog:   catalog,
		Gemini:    gemini,
		Tools:     tools,
		Evaluator: evaluator,
		Storage:   storage,
	})
}

func saveCallArgs() map[string]any {
	return map[string]any{
		"name":                 "Juan Perez",
		"phone":                "+56912345678",
		"email":                "juan@example.com",
		"budget":               "$10,000",
		"authority":            "CTO",
		"need":                 "sales automation",
		"timeline":             "2 weeks",
		"qualification_status": "QUALIFIED",
	}
}

func TestSendPlainReply(t *testing.T) {
	gemini := &mockGemini{script: []func() (*genai.GenerateContentResponse, error){
		respond(textResponse("Hi Juan! How can I help you today?")),
	}}
	reg := newRegistry(t, gemini, nil)
	ctx := context.Background()

	s, err := reg.GetOrCreate(ctx, "default", "+56912345678")
	gt.NoError(t, err)

	reply, err := s.Send(ctx, "Hello")
	gt.NoError(t, err)
	gt.Equal(t, reply.ResponseText, "Hi Juan! How can I help you today?")
	gt.Equal(t, reply.SessionKey, model.SessionKey("default_+56912345678"))
	gt.False(t, reply.Qualified)
	gt.False(t, reply.MeetingScheduled)

	snap := s.Snapshot()
	gt.Equal(t, snap.State, model.StateActive)
	gt.Nil(t, snap.Qualified)
}

func TestSendObservesSave(t *testing.T) {
	gemini := &mockGemini{script: []func() (*genai.GenerateContentResponse, error){
		respond(callResponse("save_to_crm", saveCallArgs())),
		respond(textResponse("Great, you're all set! Want to book a call?")),
	}}
	reg := newRegistry(t, gemini, nil)
	ctx := context.Background()

	s, err := reg.GetOrCreate(ctx, "default", "+56912345678")
	gt.NoError(t, err)

	reply, err := s.Send(ctx, "My timeline is 2 weeks")
	gt.NoError(t, err)
	gt.True(t, reply.Qualified)
	gt.S(t, reply.ResponseText).Contains("all set")

	snap := s.Snapshot()
	gt.Equal(t, snap.State, model.StateQualified)
	gt.True(t, snap.IsComplete)
	gt.NotNil(t, snap.Qualified)
	gt.True(t, *snap.Qualified)
	gt.Equal(t, snap.BANT.Budget, "$10,000")
	gt.Equal(t, snap.BANT.Authority, "CTO")
}

func TestSendObservesDisqualification(t *testing.T) {
	args := saveCallArgs()
	args["budget"] = "$100"
	args["qualification_status"] = "NOT_QUALIFIED"

	gemini := &mockGemini{script: []func() (*genai.GenerateContentResponse, error){
		respond(callResponse("save_to_crm", args)),
		respond(textResponse("Thanks for your time!")),
	}}
	reg := newRegistry(t, gemini, nil)
	ctx := context.Background()

	s, err := reg.GetOrCreate(ctx, "default", "+56912345678")
	gt.NoError(t, err)

	reply, err := s.Send(ctx, "our budget is about $100")
	gt.NoError(t, err)
	gt.False(t, reply.Qualified)

	snap := s.Snapshot()
	gt.Equal(t, snap.State, model.StateDisqualified)
	gt.NotNil(t, snap.Qualified)
	gt.False(t, *snap.Qualified)
}

func TestSendObservesSchedule(t *testing.T) {
	gemini := &mockGemini{script: []func() (*genai.GenerateContentResponse, error){
		respond(callResponse("schedule_meeting", map[string]any{
			"prospect_name":  "Juan Perez",
			"prospect_phone": "+56912345678",
			"date":           "2025-03-10",
			"time":           "14:00",
		})),
		respond(textResponse("Booked! See you on March 10th at 2pm.")),
	}}
	reg := newRegistry(t, gemini, nil)
	ctx := context.Background()

	s, err := reg.GetOrCreate(ctx, "default", "+56912345678")
	gt.NoError(t, err)

	reply, err := s.Send(ctx, "2pm on March 10th works")
	gt.NoError(t, err)
	gt.True(t, reply.MeetingScheduled)

	snap := s.Snapshot()
	gt.Equal(t, snap.State, model.StateMeetingScheduled)
	gt.True(t, snap.MeetingScheduled)
}

func TestSendFailedToolCallDoesNotFlip(t *testing.T) {
	// Booking fails because the slot is invalid; the flag must not move
	gemini := &mockGemini{script: []func() (*genai.GenerateContentResponse, error){
		respond(callResponse("schedule_meeting", map[string]any{
			"prospect_name":  "Juan Perez",
			"prospect_phone": "+56912345678",
			"date":           "bad-date",
			"time":           "14:00",
		})),
		respond(textResponse("Hmm, that didn't work.")),
	}}
	reg := newRegistry(t, gemini, nil)
	ctx := context.Background()

	s, err := reg.GetOrCreate(ctx, "default", "+56912345678")
	gt.NoError(t, err)

	reply, err := s.Send(ctx, "whenever")
	gt.NoError(t, err)
	gt.False(t, reply.MeetingScheduled)
	gt.Equal(t, s.Snapshot().State, model.StateActive)
}

func TestSendCollaboratorFailure(t *testing.T) {
	gemini := &mockGemini{script: []func() (*genai.GenerateContentResponse, error){
		fail(errors.New("backend unavailable")),
		respond(textResponse("Recovered now!")),
	}}
	reg := newRegistry(t, gemini, nil)
	ctx := context.Background()

	s, err := reg.GetOrCreate(ctx, "default", "+56912345678")
	gt.NoError(t, err)

	before := s.Snapshot()

	reply, err := s.Send(ctx, "Hello")
	gt.NoError(t, err)
	gt.S(t, reply.ResponseText).Contains("technical problem")

	// State rolled back wholesale
	after := s.Snapshot()
	gt.Equal(t, after.State, before.State)
	gt.Equal(t, after.BANT, before.BANT)

	// The retry goes through cleanly
	reply, err = s.Send(ctx, "Hello again")
	gt.NoError(t, err)
	gt.Equal(t, reply.ResponseText, "Recovered now!")
}

func TestRegistryGetOrCreateReturnsSameInstance(t *testing.T) {
	reg := newRegistry(t, &mockGemini{}, nil)
	ctx := context.Background()

	a, err := reg.GetOrCreate(ctx, "default", "+56912345678")
	gt.NoError(t, err)
	b, err := reg.GetOrCreate(ctx, "default", "+56912345678")
	gt.NoError(t, err)
	gt.True(t, a == b)
	gt.Equal(t, reg.Count(), 1)
}

func TestRegistryUnknownTenant(t *testing.T) {
	reg := newRegistry(t, &mockGemini{}, nil)

	_, err := reg.GetOrCreate(context.Background(), "missing-tenant", "+56912345678")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrConfigNotFound))
	gt.Equal(t, reg.Count(), 0)
}

func TestRegistryCloseThenFreshSession(t *testing.T) {
	gemini := &mockGemini{script: []func() (*genai.GenerateContentResponse, error){
		respond(callResponse("save_to_crm", saveCallArgs())),
		respond(textResponse("Saved!")),
	}}
	reg := newRegistry(t, gemini, nil)
	ctx := context.Background()

	s, err := reg.GetOrCreate(ctx, "default", "+56912345678")
	gt.NoError(t, err)
	_, err = s.Send(ctx, "all my info")
	gt.NoError(t, err)
	gt.True(t, s.Snapshot().IsComplete)

	gt.NoError(t, reg.Close(ctx, s.Key()))

	// Closed sessions reject further messages
	_, err = s.Send(ctx, "hello?")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrSessionNotFound))

	// Same key starts over with empty state
	fresh, err := reg.GetOrCreate(ctx, "default", "+56912345678")
	gt.NoError(t, err)
	gt.True(t, fresh != s)
	gt.False(t, fresh.Snapshot().IsComplete)
	gt.Equal(t, fresh.Snapshot().State, model.StateActive)
}

func TestRegistryCloseUnknownKey(t *testing.T) {
	reg := newRegistry(t, &mockGemini{}, nil)

	err := reg.Close(context.Background(), "default_+10000000000")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrSessionNotFound))
}

func TestRegistryArchivesTranscriptOnClose(t *testing.T) {
	gemini := &mockGemini{script: []func() (*genai.GenerateContentResponse, error){
		respond(textResponse("Hello there!")),
	}}
	storage := newMemStorage()
	reg := newRegistry(t, gemini, storage)
	ctx := context.Background()

	s, err := reg.GetOrCreate(ctx, "default", "+56912345678")
	gt.NoError(t, err)
	_, err = s.Send(ctx, "Hi")
	gt.NoError(t, err)

	gt.NoError(t, reg.Close(ctx, s.Key()))

	storage.mu.Lock()
	defer storage.mu.Unlock()
	gt.Equal(t, len(storage.objects), 1)

	for key, buf := range storage.objects {
		gt.S(t, key).Contains("transcripts/default/")

		var doc map[string]any
		gt.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
		gt.Equal(t, doc["session_key"], "default_+56912345678")

		transcript, ok := doc["transcript"].([]any)
		gt.True(t, ok)
		gt.A(t, transcript).Longer(1)
	}
}

func TestRegistryHandleMessageDefaultsTenant(t *testing.T) {
	gemini := &mockGemini{script: []func() (*genai.GenerateContentResponse, error){
		respond(textResponse("Welcome!")),
	}}
	reg := newRegistry(t, gemini, nil)

	reply, err := reg.HandleMessage(context.Background(), &model.InboundMessage{
		ContactID: "+56912345678",
		Text:      "Hi",
	})
	gt.NoError(t, err)
	gt.Equal(t, reply.SessionKey, model.SessionKey("default_+56912345678"))
}

func TestRegistryList(t *testing.T) {
	reg := newRegistry(t, &mockGemini{}, nil)
	ctx := context.Background()

	_, err := reg.GetOrCreate(ctx, "default", "+1")
	gt.NoError(t, err)
	_, err = reg.GetOrCreate(ctx, "default", "+2")
	gt.NoError(t, err)

	snapshots := reg.List()
	gt.Equal(t, len(snapshots), 2)

	snap, ok := snapshots["default_+1"]
	gt.True(t, ok)
	gt.Equal(t, snap.State, model.StateActive)
	gt.Equal(t, snap.ContactID, "+1")
}

func TestSessionSystemPromptPersonality(t *testing.T) {
	var captured *genai.GenerateContentConfig
	gemini := geminiFunc(func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		captured = config
		return textResponse("hi"), nil
	})
	reg := newRegistry(t, gemini, nil)
	ctx := context.Background()

	s, err := reg.GetOrCreate(ctx, "default", "+56912345678")
	gt.NoError(t, err)
	_, err = s.Send(ctx, "Hi")
	gt.NoError(t, err)

	gt.NotNil(t, captured)
	gt.NotNil(t, captured.SystemInstruction)

	var text strings.Builder
	for _, p := range captured.SystemInstruction.Parts {
		text.WriteString(p.Text)
	}
	gt.S(t, text.String()).Contains("Ana")
	gt.S(t, text.String()).Contains("5,000")
	gt.S(t, text.String()).Contains("CEO, CTO, Director")
	gt.A(t, captured.Tools).Length(2)
}

type geminiFunc func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

func (f geminiFunc) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return f(ctx, contents, config)
}
