package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bantam-dev/bantam/pkg/model"
	"github.com/bantam-dev/bantam/pkg/repository"
	"github.com/m-mizutani/gt"
)

func backends(t *testing.T) map[string]repository.Repository {
	t.Helper()

	sqlite, err := repository.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]repository.Repository{
		"memory": repository.NewMemory(),
		"sqlite": sqlite,
	}
}

func saveInput(name, phone string) *repository.SaveProspectInput {
	return &repository.SaveProspectInput{
		Name:  name,
		Phone: phone,
		Email: name + "@example.com",
		BANT: model.BANT{
			Budget:    "$10,000",
			Authority: "CTO",
			Need:      "sales automation",
			Timeline:  "2 weeks",
		},
		Status: model.StatusQualified,
		Notes:  "test prospect",
	}
}

func TestSaveProspectSequentialIDs(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := repo.SaveProspect(ctx, saveInput("Juan", "+56912345678"))
			gt.NoError(t, err)
			gt.Equal(t, first.ID, model.ProspectID("prospect_1"))
			gt.Equal(t, first.Source, "whatsapp_inbound")

			second, err := repo.SaveProspect(ctx, saveInput("Maria", "+56987654321"))
			gt.NoError(t, err)
			gt.Equal(t, second.ID, model.ProspectID("prospect_2"))
		})
	}
}

func TestSaveProspectInvalidStatus(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			input := saveInput("Juan", "+56912345678")
			input.Status = "MAYBE"

			_, err := repo.SaveProspect(context.Background(), input)
			gt.Error(t, err)
		})
	}
}

func TestFindProspectByPhone(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := repo.SaveProspect(ctx, saveInput("Juan", "+56912345678"))
			gt.NoError(t, err)
			_, err = repo.SaveProspect(ctx, saveInput("Maria", "+56987654321"))
			gt.NoError(t, err)

			rec, err := repo.FindProspectByPhone(ctx, "+56987654321")
			gt.NoError(t, err)
			gt.V(t, rec).NotNil()
			gt.Equal(t, rec.Name, "Maria")

			missing, err := repo.FindProspectByPhone(ctx, "+10000000000")
			gt.NoError(t, err)
			gt.Nil(t, missing)
		})
	}
}

func TestFindProspectByPhoneFirstWins(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := saveInput("Juan", "+56912345678")
			first.Notes = "first save"
			_, err := repo.SaveProspect(ctx, first)
			gt.NoError(t, err)

			second := saveInput("Juan", "+56912345678")
			second.Notes = "second save"
			second.Status = model.StatusNotQualified
			_, err = repo.SaveProspect(ctx, second)
			gt.NoError(t, err)

			rec, err := repo.FindProspectByPhone(ctx, "+56912345678")
			gt.NoError(t, err)
			gt.V(t, rec).NotNil()
			gt.Equal(t, rec.Notes, "first save")
			gt.Equal(t, rec.Status, model.StatusQualified)
		})
	}
}

func TestListProspects(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, p := range []string{"+1", "+2", "+3"} {
				_, err := repo.SaveProspect(ctx, saveInput("P"+p, p))
				gt.NoError(t, err)
			}

			all, err := repo.ListProspects(ctx, 0, 10)
			gt.NoError(t, err)
			gt.A(t, all).Length(3)
			gt.Equal(t, all[0].Phone, "+1")

			page, err := repo.ListProspects(ctx, 1, 1)
			gt.NoError(t, err)
			gt.A(t, page).Length(1)
			gt.Equal(t, page[0].Phone, "+2")
		})
	}
}

func scheduleInput(slot model.Slot) *repository.ScheduleMeetingInput {
	return &repository.ScheduleMeetingInput{
		ProspectName:  "Juan",
		ProspectPhone: "+56912345678",
		ProspectEmail: "juan@example.com",
		Slot:          slot,
	}
}

func TestScheduleMeetingAndAvailability(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			slot := model.Slot{Date: "2025-03-10", Time: "14:00"}

			avail, err := repo.CheckAvailability(ctx, slot)
			gt.NoError(t, err)
			gt.True(t, avail.Available)

			m, err := repo.ScheduleMeeting(ctx, scheduleInput(slot))
			gt.NoError(t, err)
			gt.Equal(t, m.ID, model.MeetingID("meeting_1"))
			gt.Equal(t, m.DurationMinutes, 30)
			gt.Equal(t, m.MeetingType, "discovery call")
			gt.Equal(t, m.Status, "scheduled")
			gt.Equal(t, m.MeetingLink, "https://meet.google.com/lookup/meeting_1")

			avail, err = repo.CheckAvailability(ctx, slot)
			gt.NoError(t, err)
			gt.False(t, avail.Available)
			gt.V(t, avail.Conflicting).NotNil()
			gt.Equal(t, avail.Conflicting.ProspectName, "Juan")
		})
	}
}

func TestScheduleMeetingConflict(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			slot := model.Slot{Date: "2025-03-10", Time: "14:00"}

			_, err := repo.ScheduleMeeting(ctx, scheduleInput(slot))
			gt.NoError(t, err)

			_, err = repo.ScheduleMeeting(ctx, scheduleInput(slot))
			gt.Error(t, err)
			gt.True(t, errors.Is(err, model.ErrSchedulingConflict))

			// A different time on the same date still books fine
			_, err = repo.ScheduleMeeting(ctx, scheduleInput(model.Slot{Date: "2025-03-10", Time: "16:00"}))
			gt.NoError(t, err)
		})
	}
}

func TestSuggestedTimesFiltered(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := repo.ScheduleMeeting(ctx, scheduleInput(model.Slot{Date: "2025-03-10", Time: "14:00"}))
			gt.NoError(t, err)
			_, err = repo.ScheduleMeeting(ctx, scheduleInput(model.Slot{Date: "2025-03-10", Time: "10:00"}))
			gt.NoError(t, err)

			avail, err := repo.CheckAvailability(ctx, model.Slot{Date: "2025-03-10", Time: "14:00"})
			gt.NoError(t, err)
			gt.False(t, avail.Available)

			// Booked candidates are not suggested back
			gt.A(t, avail.SuggestedSlots).Length(1)
			gt.Equal(t, avail.SuggestedSlots[0], "16:00")
		})
	}
}

func TestScheduleMeetingInvalidSlot(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.ScheduleMeeting(context.Background(),
				scheduleInput(model.Slot{Date: "10-03-2025", Time: "14:00"}))
			gt.Error(t, err)
			gt.True(t, errors.Is(err, model.ErrInvalidSlot))
		})
	}
}

func TestConcurrentBookingSingleWinner(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			slot := model.Slot{Date: "2025-03-10", Time: "14:00"}

			const attempts = 16
			var wg sync.WaitGroup
			errs := make([]error, attempts)

			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = repo.ScheduleMeeting(ctx, scheduleInput(slot))
				}(i)
			}
			wg.Wait()

			var won int
			for _, err := range errs {
				if err == nil {
					won++
				} else {
					gt.True(t, errors.Is(err, model.ErrSchedulingConflict))
				}
			}
			gt.Equal(t, won, 1)
		})
	}
}

func TestListMeetingsWindow(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := repo.ScheduleMeeting(ctx, scheduleInput(model.Slot{Date: "2025-03-10", Time: "10:00"}))
			gt.NoError(t, err)
			_, err = repo.ScheduleMeeting(ctx, scheduleInput(model.Slot{Date: "2025-03-20", Time: "10:00"}))
			gt.NoError(t, err)
			_, err = repo.ScheduleMeeting(ctx, scheduleInput(model.Slot{Date: "2025-05-01", Time: "10:00"}))
			gt.NoError(t, err)

			from, err := time.Parse(model.DateLayout, "2025-03-09")
			gt.NoError(t, err)

			meetings, err := repo.ListMeetings(ctx, from, 14)
			gt.NoError(t, err)
			gt.A(t, meetings).Length(2)
		})
	}
}
