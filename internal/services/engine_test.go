package services

import (
	"errors"
	"testing"
	"time"

	"github.com/eclore/eclore/internal/catalog"
	"github.com/eclore/eclore/internal/models"
)

// memStore implements every store interface the engine needs, in memory.
type memStore struct {
	profiles  map[string]*models.ProfileRecord
	answers   map[string][]models.Answer
	checkIns  map[string][]models.CheckIn
	selected  map[string]*models.SelectedAxes
	exercises map[string][]models.ExerciseCompletion
	messages  map[string][]models.ChatMessage
	failAll   bool
}

func newMemStore() *memStore {
	return &memStore{
		profiles:  map[string]*models.ProfileRecord{},
		answers:   map[string][]models.Answer{},
		checkIns:  map[string][]models.CheckIn{},
		selected:  map[string]*models.SelectedAxes{},
		exercises: map[string][]models.ExerciseCompletion{},
		messages:  map[string][]models.ChatMessage{},
	}
}

var errStoreDown = errors.New("store down")

func (m *memStore) GetProfile(userID string) (*models.ProfileRecord, error) {
	if m.failAll {
		return nil, errStoreDown
	}
	if rec, ok := m.profiles[userID]; ok {
		copy := *rec
		return &copy, nil
	}
	return nil, nil
}

func (m *memStore) ListAnswers(userID string) ([]models.Answer, error) {
	if m.failAll {
		return nil, errStoreDown
	}
	return m.answers[userID], nil
}

func (m *memStore) ListCheckIns(userID string) ([]models.CheckIn, error) {
	if m.failAll {
		return nil, errStoreDown
	}
	return m.checkIns[userID], nil
}

func (m *memStore) GetSelectedAxes(userID string) (*models.SelectedAxes, error) {
	if m.failAll {
		return nil, errStoreDown
	}
	if sel, ok := m.selected[userID]; ok {
		copy := *sel
		return &copy, nil
	}
	return nil, nil
}

func (m *memStore) ListExerciseCompletions(userID string) ([]models.ExerciseCompletion, error) {
	if m.failAll {
		return nil, errStoreDown
	}
	return m.exercises[userID], nil
}

func (m *memStore) ListChatMessages(userID string) ([]models.ChatMessage, error) {
	if m.failAll {
		return nil, errStoreDown
	}
	return m.messages[userID], nil
}

func (m *memStore) UpsertProfile(userID string, rec models.ProfileRecord) error {
	if m.failAll {
		return errStoreDown
	}
	m.profiles[userID] = &rec
	return nil
}

func (m *memStore) InsertAnswer(userID string, a models.Answer) error {
	if m.failAll {
		return errStoreDown
	}
	m.answers[userID] = append(m.answers[userID], a)
	return nil
}

func (m *memStore) UpsertCheckIn(userID string, c models.CheckIn) error {
	if m.failAll {
		return errStoreDown
	}
	for i, prev := range m.checkIns[userID] {
		if prev.Date == c.Date {
			m.checkIns[userID][i] = c
			return nil
		}
	}
	m.checkIns[userID] = append(m.checkIns[userID], c)
	return nil
}

func (m *memStore) UpsertSelectedAxes(userID string, sel models.SelectedAxes) error {
	if m.failAll {
		return errStoreDown
	}
	m.selected[userID] = &sel
	return nil
}

func (m *memStore) InsertExerciseCompletion(userID string, e models.ExerciseCompletion) error {
	if m.failAll {
		return errStoreDown
	}
	m.exercises[userID] = append(m.exercises[userID], e)
	return nil
}

func (m *memStore) InsertChatMessage(userID string, msg models.ChatMessage) error {
	if m.failAll {
		return errStoreDown
	}
	m.messages[userID] = append(m.messages[userID], msg)
	return nil
}

// testEngine wires the whole service stack over a memStore and a fixed clock.
type testEngine struct {
	cat      *catalog.Catalog
	store    *memStore
	orch     *Orchestrator
	quest    *QuestionnaireService
	onboard  *OnboardingService
	focus    *FocusService
	rec      *RecommendationService
	checkin  *CheckInService
	insights *InsightsService
	sessions *SessionManager
}

var testClock = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, gen ReplyGenerator) *testEngine {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	store := newMemStore()
	fixed := func() time.Time { return testClock }

	orch := NewOrchestrator(store, gen, cat, nil)
	orch.now = fixed
	rec := NewRecommendationService(store, cat, nil)
	rec.now = fixed
	quest := NewQuestionnaireService(store, orch, cat, nil)
	quest.now = fixed
	onboard := NewOnboardingService(store, orch, quest, cat, nil)
	onboard.now = fixed
	focus := NewFocusService(store, orch, rec, cat, nil)
	focus.now = fixed
	checkin := NewCheckInService(store, rec, nil)
	checkin.now = fixed

	return &testEngine{
		cat:      cat,
		store:    store,
		orch:     orch,
		quest:    quest,
		onboard:  onboard,
		focus:    focus,
		rec:      rec,
		checkin:  checkin,
		insights: NewInsightsService(cat),
		sessions: NewSessionManager(store, cat, nil),
	}
}

// lastOf returns the newest transcript entry, failing the test when the
// transcript is empty.
func lastOf(t *testing.T, s *Session) models.ChatMessage {
	t.Helper()
	if len(s.Transcript) == 0 {
		t.Fatalf("transcript is empty")
	}
	return s.Transcript[len(s.Transcript)-1]
}

// answerCurrent answers whatever question is on screen with the given value.
func answerCurrent(t *testing.T, eng *testEngine, s *Session, value int) {
	t.Helper()
	last := lastOf(t, s)
	if last.Kind != models.KindQuestion {
		t.Fatalf("expected a question on screen, got kind %q", last.Kind)
	}
	if err := eng.quest.Answer(s, last.QuestionID, value); err != nil {
		t.Fatalf("Answer(%s, %d): %v", last.QuestionID, value, err)
	}
}

// completeQuestionnaire drives every section to the end, answering each
// question with the same value and accepting every continue prompt.
func completeQuestionnaire(t *testing.T, eng *testEngine, s *Session, value int) {
	t.Helper()
	if err := eng.quest.StartNext(s); err != nil {
		t.Fatalf("StartNext: %v", err)
	}
	for {
		for s.CurrentSection != "" {
			answerCurrent(t, eng, s, value)
		}
		if lastOf(t, s).Kind != models.KindContinueChoice {
			return
		}
		if err := eng.quest.Continue(s); err != nil {
			t.Fatalf("Continue: %v", err)
		}
	}
}
