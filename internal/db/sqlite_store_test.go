package db

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eclore/eclore/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := RunMigrations(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := NewSQLiteStore(conn)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func addTestUser(t *testing.T, store *SQLiteStore, id, email string) {
	t.Helper()
	u := &models.User{ID: id, Email: email, PassHash: []byte("x"), CreatedAt: time.Unix(0, 0).UTC()}
	if err := store.AddUser(u); err != nil {
		t.Fatalf("add user: %v", err)
	}
}

func TestUsers(t *testing.T) {
	store := newTestStore(t)
	addTestUser(t, store, "u1", "maman@example.com")

	u, err := store.FindUserByEmail("maman@example.com")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if u == nil || u.ID != "u1" {
		t.Fatalf("unexpected user: %+v", u)
	}

	missing, err := store.FindUserByEmail("absent@example.com")
	if err != nil || missing != nil {
		t.Fatalf("expected no user and no error, got %+v, %v", missing, err)
	}

	if err := store.AddUser(&models.User{ID: "u2", Email: "maman@example.com", PassHash: []byte("x"), CreatedAt: time.Now()}); err == nil {
		t.Fatalf("expected unique violation on duplicate email")
	}
}

func TestProfileRoundTrip(t *testing.T) {
	store := newTestStore(t)
	addTestUser(t, store, "u1", "maman@example.com")

	none, err := store.GetProfile("u1")
	if err != nil || none != nil {
		t.Fatalf("expected no profile, got %+v, %v", none, err)
	}

	rec := models.ProfileRecord{
		Profile: models.Profile{
			Name:        "Claire",
			BabyName:    "Léo",
			BabyDate:    time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC),
			Feeding:     models.FeedingMixed,
			InitialMood: 2,
		},
		Step: 3,
	}
	if err := store.UpsertProfile("u1", rec); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	got, err := store.GetProfile("u1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got.Profile.Name != "Claire" || got.Profile.BabyName != "Léo" || got.Profile.Feeding != models.FeedingMixed {
		t.Fatalf("unexpected profile: %+v", got)
	}
	if !got.Profile.BabyDate.Equal(rec.Profile.BabyDate) {
		t.Fatalf("unexpected baby date: %v", got.Profile.BabyDate)
	}
	if got.Step != 3 || got.Completed {
		t.Fatalf("unexpected onboarding progress: %+v", got)
	}

	rec.Profile.Name = "Camille"
	rec.Step = 7
	rec.Completed = true
	if err := store.UpsertProfile("u1", rec); err != nil {
		t.Fatalf("upsert profile again: %v", err)
	}
	got, _ = store.GetProfile("u1")
	if got.Profile.Name != "Camille" || !got.Completed {
		t.Fatalf("expected updated record, got %+v", got)
	}
}

func TestAnswersRoundTrip(t *testing.T) {
	store := newTestStore(t)
	addTestUser(t, store, "u1", "maman@example.com")

	if err := store.InsertAnswer("u1", models.Answer{QuestionID: "e1", SectionID: "emotions", Value: 2, Label: "Assez souvent"}); err != nil {
		t.Fatalf("insert answer: %v", err)
	}
	// re-answering the same question replaces the row
	if err := store.InsertAnswer("u1", models.Answer{QuestionID: "e1", SectionID: "emotions", Value: 1, Label: "De temps en temps"}); err != nil {
		t.Fatalf("insert answer again: %v", err)
	}
	got, err := store.ListAnswers("u1")
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if len(got) != 1 || got[0].Value != 1 {
		t.Fatalf("unexpected answers: %+v", got)
	}
}

func TestCheckInsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	addTestUser(t, store, "u1", "maman@example.com")

	if err := store.UpsertCheckIn("u1", models.CheckIn{Date: "2026-08-30", Mood: 2}); err != nil {
		t.Fatalf("upsert check-in: %v", err)
	}
	if err := store.UpsertCheckIn("u1", models.CheckIn{Date: "2026-08-30", Mood: 4, Note: "mieux"}); err != nil {
		t.Fatalf("upsert same day: %v", err)
	}
	if err := store.UpsertCheckIn("u1", models.CheckIn{Date: "2026-08-31", Mood: 3}); err != nil {
		t.Fatalf("upsert next day: %v", err)
	}

	got, err := store.ListCheckIns("u1")
	if err != nil {
		t.Fatalf("list check-ins: %v", err)
	}
	if len(got) != 2 || got[0].Mood != 4 || got[0].Note != "mieux" || got[1].Date != "2026-08-31" {
		t.Fatalf("unexpected check-ins: %+v", got)
	}
}

func TestSelectedAxesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	addTestUser(t, store, "u1", "maman@example.com")

	none, err := store.GetSelectedAxes("u1")
	if err != nil || none != nil {
		t.Fatalf("expected no selection, got %+v, %v", none, err)
	}

	if err := store.UpsertSelectedAxes("u1", models.SelectedAxes{Primary: "sleep", Secondary: []string{"anxiety", "body"}}); err != nil {
		t.Fatalf("upsert selection: %v", err)
	}
	got, err := store.GetSelectedAxes("u1")
	if err != nil {
		t.Fatalf("get selection: %v", err)
	}
	if got.Primary != "sleep" || len(got.Secondary) != 2 {
		t.Fatalf("unexpected selection: %+v", got)
	}

	if err := store.UpsertSelectedAxes("u1", models.SelectedAxes{Primary: "sleep"}); err != nil {
		t.Fatalf("upsert without secondary: %v", err)
	}
	got, _ = store.GetSelectedAxes("u1")
	if len(got.Secondary) != 0 {
		t.Fatalf("expected empty secondary, got %+v", got.Secondary)
	}
}

func TestChatMessagesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	addTestUser(t, store, "u1", "maman@example.com")

	msgs := []models.ChatMessage{
		{ID: "m1", Role: models.RoleAssistant, Kind: models.KindText, Text: "Coucou"},
		{ID: "m2", Role: models.RoleAssistant, Kind: models.KindQuestion, QuestionID: "e1",
			Options: []models.QuestionOption{{Value: 0, Label: "Non"}}},
	}
	for _, m := range msgs {
		if err := store.InsertChatMessage("u1", m); err != nil {
			t.Fatalf("insert chat message: %v", err)
		}
	}

	got, err := store.ListChatMessages("u1")
	if err != nil {
		t.Fatalf("list chat messages: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m1" || got[1].QuestionID != "e1" {
		t.Fatalf("unexpected transcript: %+v", got)
	}
	if len(got[1].Options) != 1 || got[1].Options[0].Label != "Non" {
		t.Fatalf("affordance payload lost: %+v", got[1])
	}
}

func TestExerciseCompletionsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	addTestUser(t, store, "u1", "maman@example.com")

	when := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if err := store.InsertExerciseCompletion("u1", models.ExerciseCompletion{ExerciseID: "breath", CompletedAt: when}); err != nil {
			t.Fatalf("insert completion: %v", err)
		}
	}
	got, err := store.ListExerciseCompletions("u1")
	if err != nil {
		t.Fatalf("list completions: %v", err)
	}
	if len(got) != 2 || got[0].ExerciseID != "breath" {
		t.Fatalf("unexpected completions: %+v", got)
	}
}
