package repository

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/bantam-dev/bantam/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collProspects = "prospects"
	collMeetings  = "meetings"
	collSlots     = "slots"
	collCounters  = "counters"
)

// Firestore is the cloud Repository backend. Sequential ids come from
// transactional counter documents; slot uniqueness is enforced by a
// dedicated slot document created in the same transaction as the
// meeting, so concurrent bookings of one slot cannot both commit.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore-backed repository
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}
	return &Firestore{client: client}, nil
}

type counterDoc struct {
	N int64 `firestore:"n"`
}

type slotDoc struct {
	Date      string          `firestore:"date"`
	Time      string          `firestore:"time"`
	MeetingID model.MeetingID `firestore:"meeting_id"`
}

// prospectDoc adds the insertion sequence used for ordered scans
type prospectDoc struct {
	model.ProspectRecord
	Seq int64 `firestore:"seq"`
}

type meetingDoc struct {
	model.Meeting
	Seq int64 `firestore:"seq"`
}

func (r *Firestore) nextSeq(tx *firestore.Transaction, counter string) (int64, error) {
	ref := r.client.Collection(collCounters).Doc(counter)

	var c counterDoc
	snap, err := tx.Get(ref)
	switch {
	case err == nil:
		if err := snap.DataTo(&c); err != nil {
			return 0, goerr.Wrap(err, "failed to decode counter")
		}
	case status.Code(err) == codes.NotFound:
		c.N = 0
	default:
		return 0, goerr.Wrap(err, "failed to read counter")
	}

	c.N++
	if err := tx.Set(ref, &c); err != nil {
		return 0, goerr.Wrap(err, "failed to update counter")
	}
	return c.N, nil
}

func (r *Firestore) SaveProspect(ctx context.Context, input *SaveProspectInput) (*model.ProspectRecord, error) {
	if err := input.Status.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid prospect status", goerr.V("status", input.Status))
	}

	var rec *model.ProspectRecord
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		seq, err := r.nextSeq(tx, collProspects)
		if err != nil {
			return err
		}

		doc := &prospectDoc{
			ProspectRecord: model.ProspectRecord{
				ID:        model.NewProspectID(seq),
				Name:      input.Name,
				Phone:     input.Phone,
				Email:     input.Email,
				BANT:      input.BANT,
				Status:    input.Status,
				Notes:     input.Notes,
				CreatedAt: time.Now().UTC(),
				Source:    model.SourceInbound,
			},
			Seq: seq,
		}

		ref := r.client.Collection(collProspects).Doc(string(doc.ID))
		if err := tx.Create(ref, doc); err != nil {
			return goerr.Wrap(err, "failed to create prospect doc")
		}
		rec = &doc.ProspectRecord
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageWrite, err.Error())
	}

	return rec, nil
}

func (r *Firestore) FindProspectByPhone(ctx context.Context, phone string) (*model.ProspectRecord, error) {
	iter := r.client.Collection(collProspects).
		Where("phone", "==", phone).
		OrderBy("seq", firestore.Asc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
	}

	var doc prospectDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
	}
	return &doc.ProspectRecord, nil
}

func (r *Firestore) ListProspects(ctx context.Context, offset, limit int) ([]*model.ProspectRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	iter := r.client.Collection(collProspects).
		OrderBy("seq", firestore.Asc).
		Offset(offset).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var out []*model.ProspectRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
		}
		var doc prospectDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
		}
		out = append(out, &doc.ProspectRecord)
	}
	return out, nil
}

func (r *Firestore) CheckAvailability(ctx context.Context, slot model.Slot) (*model.Availability, error) {
	if err := slot.Validate(); err != nil {
		return nil, err
	}

	snap, err := r.client.Collection(collSlots).Doc(slot.Key()).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return &model.Availability{Available: true}, nil
	}
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
	}

	var sd slotDoc
	if err := snap.DataTo(&sd); err != nil {
		return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
	}

	conflict, err := r.getMeeting(ctx, sd.MeetingID)
	if err != nil {
		return nil, err
	}

	taken, err := r.takenTimes(ctx, slot.Date)
	if err != nil {
		return nil, err
	}

	return &model.Availability{
		Available:      false,
		Conflicting:    conflict,
		SuggestedSlots: suggestTimes(taken),
	}, nil
}

func (r *Firestore) getMeeting(ctx context.Context, id model.MeetingID) (*model.Meeting, error) {
	snap, err := r.client.Collection(collMeetings).Doc(string(id)).Get(ctx)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
	}
	var doc meetingDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
	}
	return &doc.Meeting, nil
}

func (r *Firestore) takenTimes(ctx context.Context, date string) (map[string]bool, error) {
	iter := r.client.Collection(collSlots).Where("date", "==", date).Documents(ctx)
	defer iter.Stop()

	taken := make(map[string]bool)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
		}
		var sd slotDoc
		if err := snap.DataTo(&sd); err != nil {
			return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
		}
		taken[sd.Time] = true
	}
	return taken, nil
}

func (r *Firestore) ScheduleMeeting(ctx context.Context, input *ScheduleMeetingInput) (*model.Meeting, error) {
	if err := input.Slot.Validate(); err != nil {
		return nil, err
	}
	normalizeMeetingInput(input)

	slotRef := r.client.Collection(collSlots).Doc(input.Slot.Key())

	var meeting *model.Meeting
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Reads first: slot occupancy, then the counter
		_, err := tx.Get(slotRef)
		if err == nil {
			return goerr.Wrap(model.ErrSchedulingConflict, "slot already booked",
				goerr.V("date", input.Slot.Date), goerr.V("time", input.Slot.Time))
		}
		if status.Code(err) != codes.NotFound {
			return goerr.Wrap(err, "failed to read slot")
		}

		seq, err := r.nextSeq(tx, collMeetings)
		if err != nil {
			return err
		}

		id := model.NewMeetingID(seq)
		doc := &meetingDoc{
			Meeting: model.Meeting{
				ID:              id,
				ProspectName:    input.ProspectName,
				ProspectPhone:   input.ProspectPhone,
				ProspectEmail:   input.ProspectEmail,
				Slot:            input.Slot,
				DurationMinutes: input.DurationMinutes,
				MeetingType:     input.MeetingType,
				Status:          model.MeetingStatusScheduled,
				CreatedAt:       time.Now().UTC(),
				MeetingLink:     model.MeetingLink(id),
			},
			Seq: seq,
		}

		if err := tx.Create(slotRef, &slotDoc{
			Date:      input.Slot.Date,
			Time:      input.Slot.Time,
			MeetingID: id,
		}); err != nil {
			return goerr.Wrap(err, "failed to create slot doc")
		}
		if err := tx.Create(r.client.Collection(collMeetings).Doc(string(id)), doc); err != nil {
			return goerr.Wrap(err, "failed to create meeting doc")
		}

		meeting = &doc.Meeting
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrSchedulingConflict) {
			return nil, err
		}
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.Wrap(model.ErrSchedulingConflict, "slot already booked",
				goerr.V("date", input.Slot.Date), goerr.V("time", input.Slot.Time))
		}
		return nil, goerr.Wrap(model.ErrStorageWrite, err.Error())
	}

	return meeting, nil
}

func (r *Firestore) ListMeetings(ctx context.Context, from time.Time, days int) ([]*model.Meeting, error) {
	lo := from.Format(model.DateLayout)
	hi := from.AddDate(0, 0, days).Format(model.DateLayout)

	iter := r.client.Collection(collMeetings).
		Where("slot.date", ">=", lo).
		Where("slot.date", "<=", hi).
		Documents(ctx)
	defer iter.Stop()

	var out []*model.Meeting
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
		}
		var doc meetingDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
		}
		out = append(out, &doc.Meeting)
	}
	return out, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}
