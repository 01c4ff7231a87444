// Package db implements the persistence collaborator over SQLite. The engine
// treats every call as best-effort; the store only reports errors, it never
// owns conversation state.
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eclore/eclore/internal/models"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *SQLiteStore) FindUserByEmail(email string) (*models.User, error) {
	row := s.db.QueryRow(`SELECT id, email, pass_hash, created_at FROM users WHERE email = ?`, email)
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.PassHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) AddUser(u *models.User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, email, pass_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PassHash, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProfile(userID string) (*models.ProfileRecord, error) {
	row := s.db.QueryRow(`SELECT name, baby_name, baby_date, feeding, initial_mood, onboard_step, completed FROM profiles WHERE user_id = ?`, userID)
	var (
		rec      models.ProfileRecord
		babyDate sql.NullTime
		feeding  string
	)
	if err := row.Scan(&rec.Profile.Name, &rec.Profile.BabyName, &babyDate, &feeding, &rec.Profile.InitialMood, &rec.Step, &rec.Completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if babyDate.Valid {
		rec.Profile.BabyDate = babyDate.Time
	}
	rec.Profile.Feeding = models.FeedingMode(feeding)
	return &rec, nil
}

func (s *SQLiteStore) UpsertProfile(userID string, rec models.ProfileRecord) error {
	p := rec.Profile
	var babyDate any
	if !p.BabyDate.IsZero() {
		babyDate = p.BabyDate
	}
	_, err := s.db.Exec(`
		INSERT INTO profiles (user_id, name, baby_name, baby_date, feeding, initial_mood, onboard_step, completed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			baby_name = excluded.baby_name,
			baby_date = excluded.baby_date,
			feeding = excluded.feeding,
			initial_mood = excluded.initial_mood,
			onboard_step = excluded.onboard_step,
			completed = excluded.completed,
			updated_at = excluded.updated_at`,
		userID, p.Name, p.BabyName, babyDate, string(p.Feeding), p.InitialMood, rec.Step, rec.Completed, s.now())
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAnswers(userID string) ([]models.Answer, error) {
	rows, err := s.db.Query(`SELECT question_id, section_id, value, label FROM answers WHERE user_id = ? ORDER BY created_at, question_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()
	var out []models.Answer
	for rows.Next() {
		var a models.Answer
		if err := rows.Scan(&a.QuestionID, &a.SectionID, &a.Value, &a.Label); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertAnswer(userID string, a models.Answer) error {
	_, err := s.db.Exec(`
		INSERT INTO answers (user_id, question_id, section_id, value, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, question_id) DO UPDATE SET
			value = excluded.value,
			label = excluded.label,
			created_at = excluded.created_at`,
		userID, a.QuestionID, a.SectionID, a.Value, a.Label, s.now())
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCheckIns(userID string) ([]models.CheckIn, error) {
	rows, err := s.db.Query(`SELECT date, mood, note FROM check_ins WHERE user_id = ? ORDER BY date`, userID)
	if err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	defer rows.Close()
	var out []models.CheckIn
	for rows.Next() {
		var c models.CheckIn
		if err := rows.Scan(&c.Date, &c.Mood, &c.Note); err != nil {
			return nil, fmt.Errorf("scan check-in: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertCheckIn(userID string, c models.CheckIn) error {
	_, err := s.db.Exec(`
		INSERT INTO check_ins (user_id, date, mood, note) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			mood = excluded.mood,
			note = excluded.note`,
		userID, c.Date, c.Mood, c.Note)
	if err != nil {
		return fmt.Errorf("upsert check-in: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSelectedAxes(userID string) (*models.SelectedAxes, error) {
	row := s.db.QueryRow(`SELECT primary_axis, secondary_axes FROM selected_axes WHERE user_id = ?`, userID)
	var (
		sel       models.SelectedAxes
		secondary string
	)
	if err := row.Scan(&sel.Primary, &secondary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get selected axes: %w", err)
	}
	if err := json.Unmarshal([]byte(secondary), &sel.Secondary); err != nil {
		return nil, fmt.Errorf("decode secondary axes: %w", err)
	}
	return &sel, nil
}

func (s *SQLiteStore) UpsertSelectedAxes(userID string, sel models.SelectedAxes) error {
	secondary := sel.Secondary
	if secondary == nil {
		secondary = []string{}
	}
	encoded, err := json.Marshal(secondary)
	if err != nil {
		return fmt.Errorf("encode secondary axes: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO selected_axes (user_id, primary_axis, secondary_axes, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			primary_axis = excluded.primary_axis,
			secondary_axes = excluded.secondary_axes,
			updated_at = excluded.updated_at`,
		userID, sel.Primary, string(encoded), s.now())
	if err != nil {
		return fmt.Errorf("upsert selected axes: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListExerciseCompletions(userID string) ([]models.ExerciseCompletion, error) {
	rows, err := s.db.Query(`SELECT exercise_id, completed_at FROM exercise_completions WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list exercise completions: %w", err)
	}
	defer rows.Close()
	var out []models.ExerciseCompletion
	for rows.Next() {
		var e models.ExerciseCompletion
		if err := rows.Scan(&e.ExerciseID, &e.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan exercise completion: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertExerciseCompletion(userID string, e models.ExerciseCompletion) error {
	_, err := s.db.Exec(`INSERT INTO exercise_completions (user_id, exercise_id, completed_at) VALUES (?, ?, ?)`,
		userID, e.ExerciseID, e.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert exercise completion: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListChatMessages(userID string) ([]models.ChatMessage, error) {
	rows, err := s.db.Query(`SELECT payload FROM chat_messages WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()
	var out []models.ChatMessage
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		var m models.ChatMessage
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return nil, fmt.Errorf("decode chat message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertChatMessage(userID string, m models.ChatMessage) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO chat_messages (id, user_id, payload) VALUES (?, ?, ?)`,
		m.ID, userID, string(payload))
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}
