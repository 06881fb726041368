package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bantam-dev/bantam/pkg/model"
	"github.com/bantam-dev/bantam/pkg/repository"
	"github.com/bantam-dev/bantam/pkg/tool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// Function names exposed to the conversational agent.
const (
	FuncCheckAvailability = "check_availability"
	FuncScheduleMeeting   = "schedule_meeting"
)

type checkInput struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type scheduleInput struct {
	ProspectName    string `json:"prospect_name"`
	ProspectPhone   string `json:"prospect_phone"`
	ProspectEmail   string `json:"prospect_email"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	MeetingType     string `json:"meeting_type"`
}

type calendar struct {
	repo repository.Repository
}

// New creates the meeting scheduling tool backed by the given client
func New(client *tool.Client) *calendar {
	return &calendar{repo: client.Repo}
}

// Flags returns CLI flags for this tool
func (x *calendar) Flags() []cli.Flag {
	return nil
}

// Prompt returns additional information to be added to the system prompt
func (x *calendar) Prompt(ctx context.Context) string {
	return `Offer a meeting only to qualified prospects. Check the requested slot with check_availability before booking it with schedule_meeting. When a slot is taken, offer the suggested alternative times instead of inventing new ones.`
}

// Spec returns the tool specification for Gemini function calling
func (x *calendar) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        FuncCheckAvailability,
				Description: "Check whether a meeting slot is free",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"date": {
							Type:        genai.TypeString,
							Description: "Meeting date in YYYY-MM-DD format",
						},
						"time": {
							Type:        genai.TypeString,
							Description: "Meeting start time in HH:MM 24-hour format",
						},
					},
					Required: []string{"date", "time"},
				},
			},
			{
				Name:        FuncScheduleMeeting,
				Description: "Book a meeting with a qualified prospect in a free slot",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"prospect_name": {
							Type:        genai.TypeString,
							Description: "Prospect's full name",
						},
						"prospect_phone": {
							Type:        genai.TypeString,
							Description: "Prospect's phone number in international format",
						},
						"prospect_email": {
							Type:        genai.TypeString,
							Description: "Prospect's email address",
						},
						"date": {
							Type:        genai.TypeString,
							Description: "Meeting date in YYYY-MM-DD format",
						},
						"time": {
							Type:        genai.TypeString,
							Description: "Meeting start time in HH:MM 24-hour format",
						},
						"duration_minutes": {
							Type:        genai.TypeInteger,
							Description: "Meeting length in minutes (default: 30)",
						},
						"meeting_type": {
							Type:        genai.TypeString,
							Description: `Kind of meeting (default: "discovery call")`,
						},
					},
					Required: []string{"prospect_name", "prospect_phone", "date", "time"},
				},
			},
		},
	}
}

// Execute runs the tool with the given function call
func (x *calendar) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	paramsJSON, err := json.Marshal(fc.Args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal function arguments")
	}

	var response map[string]any
	switch fc.Name {
	case FuncCheckAvailability:
		response, err = x.check(ctx, paramsJSON)
	case FuncScheduleMeeting:
		response, err = x.schedule(ctx, paramsJSON)
	default:
		return nil, goerr.New("unknown function", goerr.V("name", fc.Name))
	}
	if err != nil {
		return nil, err
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: response,
	}, nil
}

func (x *calendar) check(ctx context.Context, params json.RawMessage) (map[string]any, error) {
	var input checkInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, goerr.Wrap(err, "failed to parse input parameters")
	}

	slot := model.Slot{Date: input.Date, Time: input.Time}
	avail, err := x.repo.CheckAvailability(ctx, slot)
	if err != nil {
		if errors.Is(err, model.ErrInvalidSlot) {
			return map[string]any{
				"available": false,
				"message":   "date must be YYYY-MM-DD and time must be HH:MM",
			}, nil
		}
		return map[string]any{
			"available": false,
			"message":   "failed to check the calendar, please try again later",
		}, nil
	}

	if avail.Available {
		return map[string]any{
			"available": true,
			"message":   fmt.Sprintf("%s at %s is available", input.Date, input.Time),
		}, nil
	}

	return map[string]any{
		"available":       false,
		"message":         fmt.Sprintf("%s at %s is already taken", input.Date, input.Time),
		"suggested_times": avail.SuggestedSlots,
	}, nil
}

func (x *calendar) schedule(ctx context.Context, params json.RawMessage) (map[string]any, error) {
	var input scheduleInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, goerr.Wrap(err, "failed to parse input parameters")
	}

	slot := model.Slot{Date: input.Date, Time: input.Time}
	meeting, err := x.repo.ScheduleMeeting(ctx, &repository.ScheduleMeetingInput{
		ProspectName:    input.ProspectName,
		ProspectPhone:   input.ProspectPhone,
		ProspectEmail:   input.ProspectEmail,
		Slot:            slot,
		DurationMinutes: input.DurationMinutes,
		MeetingType:     input.MeetingType,
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrSchedulingConflict):
			// The booking was already rejected atomically, so this probe
			// only gathers alternatives for the reply
			suggested := []string{}
			if avail, probeErr := x.repo.CheckAvailability(ctx, slot); probeErr == nil && !avail.Available {
				suggested = avail.SuggestedSlots
			}
			return map[string]any{
				"success":         false,
				"message":         fmt.Sprintf("%s at %s is already taken", input.Date, input.Time),
				"suggested_times": suggested,
			}, nil
		case errors.Is(err, model.ErrInvalidSlot):
			return map[string]any{
				"success": false,
				"message": "date must be YYYY-MM-DD and time must be HH:MM",
			}, nil
		default:
			return map[string]any{
				"success": false,
				"message": "failed to book the meeting, please try again later",
			}, nil
		}
	}

	return map[string]any{
		"success":      true,
		"meeting_id":   string(meeting.ID),
		"meeting_link": meeting.MeetingLink,
		"date":         meeting.Slot.Date,
		"time":         meeting.Slot.Time,
		"message":      fmt.Sprintf("meeting booked for %s at %s", meeting.Slot.Date, meeting.Slot.Time),
	}, nil
}
