package calendar_test

import (
	"context"
	"testing"

	"github.com/bantam-dev/bantam/pkg/repository"
	"github.com/bantam-dev/bantam/pkg/tool"
	"github.com/bantam-dev/bantam/pkg/tool/calendar"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

func newTool() tool.Tool {
	return calendar.New(&tool.Client{Repo: repository.NewMemory()})
}

func scheduleArgs(date, tm string) map[string]any {
	return map[string]any{
		"prospect_name":  "Juan Perez",
		"prospect_phone": "+56912345678",
		"prospect_email": "juan@example.com",
		"date":           date,
		"time":           tm,
	}
}

func TestSpec(t *testing.T) {
	x := newTool()

	spec := x.Spec()
	gt.NotNil(t, spec)
	gt.A(t, spec.FunctionDeclarations).Length(2)
	gt.Equal(t, spec.FunctionDeclarations[0].Name, "check_availability")
	gt.Equal(t, spec.FunctionDeclarations[1].Name, "schedule_meeting")
}

func TestCheckAvailabilityFreeSlot(t *testing.T) {
	x := newTool()

	resp, err := x.Execute(context.Background(), genai.FunctionCall{
		Name: calendar.FuncCheckAvailability,
		Args: map[string]any{"date": "2025-03-10", "time": "14:00"},
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.Response["available"], true)
}

func TestScheduleMeeting(t *testing.T) {
	x := newTool()
	ctx := context.Background()

	resp, err := x.Execute(ctx, genai.FunctionCall{
		Name: calendar.FuncScheduleMeeting,
		Args: scheduleArgs("2025-03-10", "14:00"),
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.Response["success"], true)
	gt.Equal(t, resp.Response["meeting_id"], "meeting_1")
	gt.Equal(t, resp.Response["meeting_link"], "https://meet.google.com/lookup/meeting_1")

	// The slot is now reported taken
	resp, err = x.Execute(ctx, genai.FunctionCall{
		Name: calendar.FuncCheckAvailability,
		Args: map[string]any{"date": "2025-03-10", "time": "14:00"},
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.Response["available"], false)
}

func TestScheduleMeetingConflictSuggestsAlternatives(t *testing.T) {
	x := newTool()
	ctx := context.Background()

	_, err := x.Execute(ctx, genai.FunctionCall{
		Name: calendar.FuncScheduleMeeting,
		Args: scheduleArgs("2025-03-10", "14:00"),
	})
	gt.NoError(t, err)

	resp, err := x.Execute(ctx, genai.FunctionCall{
		Name: calendar.FuncScheduleMeeting,
		Args: scheduleArgs("2025-03-10", "14:00"),
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.Response["success"], false)

	suggested, ok := resp.Response["suggested_times"].([]string)
	gt.True(t, ok)
	gt.A(t, suggested).Length(2)
	gt.Equal(t, suggested[0], "10:00")
	gt.Equal(t, suggested[1], "16:00")
}

func TestScheduleMeetingInvalidSlot(t *testing.T) {
	x := newTool()

	resp, err := x.Execute(context.Background(), genai.FunctionCall{
		Name: calendar.FuncScheduleMeeting,
		Args: scheduleArgs("10-03-2025", "14:00"),
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.Response["success"], false)
	gt.S(t, resp.Response["message"].(string)).Contains("YYYY-MM-DD")
}
