package services

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eclore/eclore/internal/catalog"
	"github.com/eclore/eclore/internal/models"
)

// Session is the single owned state record for one user's conversation.
// Every handler receives it explicitly; there is exactly one active writer
// per user, so a plain mutex around each discrete event is enough.
type Session struct {
	mu sync.Mutex

	UserID  string
	Profile models.Profile

	// ProfileSaved flips when onboarding completes, ProfileComplete when a
	// primary focus axis has been selected.
	ProfileSaved    bool
	ProfileComplete bool

	OnboardStep int

	// Answers accumulates across the whole questionnaire lifetime;
	// SectionAnswers is reset each time a section starts.
	Answers           map[string]int
	SectionAnswers    map[string]int
	CompletedSections []string
	CurrentSection    string
	QuestionIndex     int

	// Axes is the ranked analysis, computed once after the last section.
	Axes     []AxisScore
	Selected models.SelectedAxes

	CheckIns  []models.CheckIn
	Exercises []models.ExerciseCompletion

	// Transcript is append-only and never reordered.
	Transcript []models.ChatMessage

	// Loading is set while a completion request is in flight; at most one
	// outbound request is allowed at a time.
	Loading bool
}

// NewSession returns an empty session for the given user.
func NewSession(userID string) *Session {
	return &Session{
		UserID:         userID,
		Answers:        map[string]int{},
		SectionAnswers: map[string]int{},
	}
}

func (s *Session) lastMessage() (models.ChatMessage, bool) {
	if len(s.Transcript) == 0 {
		return models.ChatMessage{}, false
	}
	return s.Transcript[len(s.Transcript)-1], true
}

// affordanceActive reports whether the most recent transcript entry carries
// the given affordance. Once superseded by any newer entry an affordance is
// inert, which prevents double submission of the same prompt.
func (s *Session) affordanceActive(kind models.MessageKind) bool {
	last, ok := s.lastMessage()
	return ok && last.Kind == kind
}

// LastCheckIn returns the most recent check-in, if any.
func (s *Session) LastCheckIn() (models.CheckIn, bool) {
	if len(s.CheckIns) == 0 {
		return models.CheckIn{}, false
	}
	return s.CheckIns[len(s.CheckIns)-1], true
}

// CheckInOn returns the check-in recorded for the given calendar day.
func (s *Session) CheckInOn(date string) (models.CheckIn, bool) {
	for _, c := range s.CheckIns {
		if c.Date == date {
			return c, true
		}
	}
	return models.CheckIn{}, false
}

// SessionState is a consistent copy of the renderable session fields, safe
// to use after the lock is released.
type SessionState struct {
	Profile         models.Profile
	ProfileSaved    bool
	ProfileComplete bool
	OnboardStep     int
	Selected        models.SelectedAxes
	Loading         bool
}

// State returns a snapshot for read-only callers. Every field is a copy;
// mutating the result never touches the session.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel := s.Selected
	sel.Secondary = append([]string(nil), s.Selected.Secondary...)
	return SessionState{
		Profile:         s.Profile,
		ProfileSaved:    s.ProfileSaved,
		ProfileComplete: s.ProfileComplete,
		OnboardStep:     s.OnboardStep,
		Selected:        sel,
		Loading:         s.Loading,
	}
}

// AnswerValues returns a copy of the recorded answers keyed by question id.
func (s *Session) AnswerValues() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.Answers))
	for id, v := range s.Answers {
		out[id] = v
	}
	return out
}

// CheckInHistory returns a copy of the recorded check-ins, oldest first.
func (s *Session) CheckInHistory() []models.CheckIn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CheckIn(nil), s.CheckIns...)
}

func (s *Session) sectionCompleted(id string) bool {
	for _, done := range s.CompletedSections {
		if done == id {
			return true
		}
	}
	return false
}

// SessionStore is the read side of the persistence collaborator, used to
// rehydrate a session when a user comes back. All calls are best-effort.
type SessionStore interface {
	GetProfile(userID string) (*models.ProfileRecord, error)
	ListAnswers(userID string) ([]models.Answer, error)
	ListCheckIns(userID string) ([]models.CheckIn, error)
	GetSelectedAxes(userID string) (*models.SelectedAxes, error)
	ListExerciseCompletions(userID string) ([]models.ExerciseCompletion, error)
	ListChatMessages(userID string) ([]models.ChatMessage, error)
}

// SessionManager owns the in-memory sessions, one per user. A session is
// rehydrated from the store on first access; when the store fails the user
// still gets a fresh in-memory session and the engine runs degraded.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	store    SessionStore
	catalog  *catalog.Catalog
	log      *zap.SugaredLogger
}

func NewSessionManager(store SessionStore, cat *catalog.Catalog, log *zap.SugaredLogger) *SessionManager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &SessionManager{
		sessions: map[string]*Session{},
		store:    store,
		catalog:  cat,
		log:      log,
	}
}

// Get returns the session for userID, rehydrating it on first access.
func (m *SessionManager) Get(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s
	}
	s := m.rehydrate(userID)
	m.sessions[userID] = s
	return s
}

// Active returns a snapshot of all loaded sessions.
func (m *SessionManager) Active() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

func (m *SessionManager) rehydrate(userID string) *Session {
	s := NewSession(userID)
	if m.store == nil {
		return s
	}

	if rec, err := m.store.GetProfile(userID); err != nil {
		m.log.Warnw("rehydrate profile", "user_id", userID, "error", err)
	} else if rec != nil {
		s.Profile = rec.Profile
		if rec.Completed {
			s.ProfileSaved = true
			s.OnboardStep = len(m.catalog.Onboarding)
		} else {
			s.OnboardStep = rec.Step
		}
	}

	if answers, err := m.store.ListAnswers(userID); err != nil {
		m.log.Warnw("rehydrate answers", "user_id", userID, "error", err)
	} else {
		for _, a := range answers {
			s.Answers[a.QuestionID] = a.Value
		}
	}

	// A section counts as completed when every one of its questions has a
	// stored answer.
	for _, sec := range m.catalog.Sections {
		done := len(sec.Questions) > 0
		for _, q := range sec.Questions {
			if _, ok := s.Answers[q.ID]; !ok {
				done = false
				break
			}
		}
		if done {
			s.CompletedSections = append(s.CompletedSections, sec.ID)
		}
	}
	if len(s.CompletedSections) == len(m.catalog.Sections) && len(s.Answers) > 0 {
		s.Axes = ScoreAxes(m.catalog, s.Answers)
	}

	if cs, err := m.store.ListCheckIns(userID); err != nil {
		m.log.Warnw("rehydrate check-ins", "user_id", userID, "error", err)
	} else {
		s.CheckIns = cs
	}

	if sel, err := m.store.GetSelectedAxes(userID); err != nil {
		m.log.Warnw("rehydrate selected axes", "user_id", userID, "error", err)
	} else if sel != nil {
		s.Selected = *sel
		s.ProfileComplete = sel.Primary != ""
		if s.Axes == nil && len(s.Answers) > 0 {
			s.Axes = ScoreAxes(m.catalog, s.Answers)
		}
	}

	if ex, err := m.store.ListExerciseCompletions(userID); err != nil {
		m.log.Warnw("rehydrate exercises", "user_id", userID, "error", err)
	} else {
		s.Exercises = ex
	}

	if msgs, err := m.store.ListChatMessages(userID); err != nil {
		m.log.Warnw("rehydrate transcript", "user_id", userID, "error", err)
	} else {
		s.Transcript = msgs
	}

	// A restart must not strand a prompt at the end of the transcript: when
	// the newest entry is still awaiting its answer, restore the position
	// the engine was waiting at so the answer is accepted.
	if last, ok := s.lastMessage(); ok {
		switch last.Kind {
		case models.KindQuestion:
			if sec, found := m.catalog.SectionOf(last.QuestionID); found && !s.sectionCompleted(sec.ID) {
				s.CurrentSection = sec.ID
				for i, q := range sec.Questions {
					if q.ID == last.QuestionID {
						s.QuestionIndex = i
						break
					}
				}
				for _, q := range sec.Questions[:s.QuestionIndex] {
					if v, answered := s.Answers[q.ID]; answered {
						s.SectionAnswers[q.ID] = v
					}
				}
			}
		case models.KindSecondaryPicker:
			if s.Selected.Primary == "" {
				s.Selected.Primary = last.PrimaryID
			}
		}
	}

	return s
}

func dayOf(t time.Time) string { return t.UTC().Format("2006-01-02") }
