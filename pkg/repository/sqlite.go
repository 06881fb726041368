package repository

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bantam-dev/bantam/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"
)

// SQLite is a file-backed Repository. The UNIQUE constraint on
// (meeting_date, meeting_time) makes slot booking atomic: the insert
// itself is the availability check.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates a database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create db dir", goerr.V("dir", dir))
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open db", goerr.V("path", dbPath))
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to migrate schema")
	}

	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS prospects (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL,
		phone      TEXT NOT NULL,
		email      TEXT NOT NULL,
		budget     TEXT NOT NULL DEFAULT '',
		authority  TEXT NOT NULL DEFAULT '',
		need       TEXT NOT NULL DEFAULT '',
		timeline   TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL,
		notes      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		source     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_prospects_phone ON prospects(phone);

	CREATE TABLE IF NOT EXISTS meetings (
		seq              INTEGER PRIMARY KEY AUTOINCREMENT,
		prospect_name    TEXT NOT NULL,
		prospect_phone   TEXT NOT NULL,
		prospect_email   TEXT NOT NULL,
		meeting_date     TEXT NOT NULL,
		meeting_time     TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		meeting_type     TEXT NOT NULL,
		status           TEXT NOT NULL,
		created_at       TEXT NOT NULL,
		UNIQUE (meeting_date, meeting_time)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) SaveProspect(ctx context.Context, input *SaveProspectInput) (*model.ProspectRecord, error) {
	if err := input.Status.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid prospect status", goerr.V("status", input.Status))
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO prospects (name, phone, email, budget, authority, need, timeline, status, notes, created_at, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		input.Name, input.Phone, input.Email,
		input.BANT.Budget, input.BANT.Authority, input.BANT.Need, input.BANT.Timeline,
		string(input.Status), input.Notes, now.Format(time.RFC3339), model.SourceInbound)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageWrite, err.Error())
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageWrite, err.Error())
	}

	return &model.ProspectRecord{
		ID:        model.NewProspectID(seq),
		Name:      input.Name,
		Phone:     input.Phone,
		Email:     input.Email,
		BANT:      input.BANT,
		Status:    input.Status,
		Notes:     input.Notes,
		CreatedAt: now,
		Source:    model.SourceInbound,
	}, nil
}

func (s *SQLite) FindProspectByPhone(ctx context.Context, phone string) (*model.ProspectRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT seq, name, phone, email, budget, authority, need, timeline, status, notes, created_at, source
		 FROM prospects WHERE phone = ? ORDER BY seq ASC LIMIT 1`, phone)

	rec, err := scanProspect(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
	}
	return rec, nil
}

func (s *SQLite) ListProspects(ctx context.Context, offset, limit int) ([]*model.ProspectRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, name, phone, email, budget, authority, need, timeline, status, notes, created_at, source
		 FROM prospects ORDER BY seq ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
	}
	defer rows.Close()

	var out []*model.ProspectRecord
	for rows.Next() {
		rec, err := scanProspect(rows)
		if err != nil {
			return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) CheckAvailability(ctx context.Context, slot model.Slot) (*model.Availability, error) {
	if err := slot.Validate(); err != nil {
		return nil, err
	}

	taken := make(map[string]bool)
	var conflict *model.Meeting

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, prospect_name, prospect_phone, prospect_email, meeting_date, meeting_time,
		        duration_minutes, meeting_type, status, created_at
		 FROM meetings WHERE meeting_date = ?`, slot.Date)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
		}
		taken[m.Slot.Time] = true
		if m.Slot.Time == slot.Time {
			conflict = m
		}
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
	}

	if conflict == nil {
		return &model.Availability{Available: true}, nil
	}
	return &model.Availability{
		Available:      false,
		Conflicting:    conflict,
		SuggestedSlots: suggestTimes(taken),
	}, nil
}

func (s *SQLite) ScheduleMeeting(ctx context.Context, input *ScheduleMeetingInput) (*model.Meeting, error) {
	if err := input.Slot.Validate(); err != nil {
		return nil, err
	}
	normalizeMeetingInput(input)

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO meetings (prospect_name, prospect_phone, prospect_email, meeting_date, meeting_time,
		                       duration_minutes, meeting_type, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		input.ProspectName, input.ProspectPhone, input.ProspectEmail,
		input.Slot.Date, input.Slot.Time,
		input.DurationMinutes, input.MeetingType, model.MeetingStatusScheduled,
		now.Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, goerr.Wrap(model.ErrSchedulingConflict, "slot already booked",
				goerr.V("date", input.Slot.Date), goerr.V("time", input.Slot.Time))
		}
		return nil, goerr.Wrap(model.ErrStorageWrite, err.Error())
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageWrite, err.Error())
	}

	id := model.NewMeetingID(seq)
	return &model.Meeting{
		ID:              id,
		ProspectName:    input.ProspectName,
		ProspectPhone:   input.ProspectPhone,
		ProspectEmail:   input.ProspectEmail,
		Slot:            input.Slot,
		DurationMinutes: input.DurationMinutes,
		MeetingType:     input.MeetingType,
		Status:          model.MeetingStatusScheduled,
		CreatedAt:       now,
		MeetingLink:     model.MeetingLink(id),
	}, nil
}

func (s *SQLite) ListMeetings(ctx context.Context, from time.Time, days int) ([]*model.Meeting, error) {
	lo := from.Format(model.DateLayout)
	hi := from.AddDate(0, 0, days).Format(model.DateLayout)

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, prospect_name, prospect_phone, prospect_email, meeting_date, meeting_time,
		        duration_minutes, meeting_type, status, created_at
		 FROM meetings WHERE meeting_date >= ? AND meeting_date <= ? ORDER BY meeting_date, meeting_time`,
		lo, hi)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
	}
	defer rows.Close()

	var out []*model.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, goerr.Wrap(model.ErrStorageRead, err.Error())
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProspect(row scanner) (*model.ProspectRecord, error) {
	var rec model.ProspectRecord
	var seq int64
	var createdAt string

	err := row.Scan(&seq, &rec.Name, &rec.Phone, &rec.Email,
		&rec.BANT.Budget, &rec.BANT.Authority, &rec.BANT.Need, &rec.BANT.Timeline,
		&rec.Status, &rec.Notes, &createdAt, &rec.Source)
	if err != nil {
		return nil, err
	}

	rec.ID = model.NewProspectID(seq)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &rec, nil
}

func scanMeeting(row scanner) (*model.Meeting, error) {
	var m model.Meeting
	var seq int64
	var createdAt string

	err := row.Scan(&seq, &m.ProspectName, &m.ProspectPhone, &m.ProspectEmail,
		&m.Slot.Date, &m.Slot.Time, &m.DurationMinutes, &m.MeetingType, &m.Status, &createdAt)
	if err != nil {
		return nil, err
	}

	m.ID = model.NewMeetingID(seq)
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	m.MeetingLink = model.MeetingLink(m.ID)
	return &m, nil
}
