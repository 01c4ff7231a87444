package services

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eclore/eclore/internal/catalog"
	"github.com/eclore/eclore/internal/models"
)

// QuestionnaireStore is the write side the questionnaire engine needs.
type QuestionnaireStore interface {
	InsertAnswer(userID string, a models.Answer) error
}

// QuestionnaireService administers the catalog sections one question at a
// time. Sections are offered in catalog order, only those not yet completed;
// a deferred section keeps its prior answers and can be resumed later.
type QuestionnaireService struct {
	store   QuestionnaireStore
	orch    *Orchestrator
	catalog *catalog.Catalog
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewQuestionnaireService(store QuestionnaireStore, orch *Orchestrator, cat *catalog.Catalog, log *zap.SugaredLogger) *QuestionnaireService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &QuestionnaireService{
		store:   store,
		orch:    orch,
		catalog: cat,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// StartNext begins the first section not yet completed. When a section is
// already in progress and its pending question is no longer the most recent
// transcript entry, the question is re-emitted instead.
func (svc *QuestionnaireService) StartNext(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CurrentSection != "" {
		sec, ok := svc.catalog.Section(s.CurrentSection)
		if !ok {
			return NewNotFoundError("unknown section " + s.CurrentSection)
		}
		q := sec.Questions[s.QuestionIndex]
		if last, ok := s.lastMessage(); ok && last.Kind == models.KindQuestion && last.QuestionID == q.ID {
			return NewConflictError("a section is already in progress")
		}
		svc.emitQuestionLocked(s, q)
		return nil
	}
	sec, ok := svc.catalog.NextSection(s.CompletedSections)
	if !ok {
		return NewConflictError("questionnaire already completed")
	}
	svc.startSectionLocked(s, sec)
	return nil
}

// Continue resolves the continue/later choice offered after a section
// summary: it starts the next uncompleted section.
func (svc *QuestionnaireService) Continue(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.affordanceActive(models.KindContinueChoice) {
		return NewInvalidError("this prompt has already been answered")
	}
	sec, ok := svc.catalog.NextSection(s.CompletedSections)
	if !ok {
		return NewConflictError("questionnaire already completed")
	}
	svc.startSectionLocked(s, sec)
	return nil
}

// Defer acknowledges the continue/later choice without starting a section;
// collected answers are kept and the section can be resumed any time.
func (svc *QuestionnaireService) Defer(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.affordanceActive(models.KindContinueChoice) {
		return NewInvalidError("this prompt has already been answered")
	}
	svc.orch.appendLocked(s, models.ChatMessage{
		Kind: models.KindText,
		Text: "Pas de souci, on reprendra quand tu veux. 💜",
	})
	return nil
}

func (svc *QuestionnaireService) startSectionLocked(s *Session, sec catalog.Section) {
	s.CurrentSection = sec.ID
	s.QuestionIndex = 0
	s.SectionAnswers = map[string]int{}
	svc.orch.appendLocked(s, models.ChatMessage{
		Kind: models.KindText,
		Text: fmt.Sprintf("📝 **%s** (%d/%d)\n\n%s", sec.Title, len(s.CompletedSections)+1, len(svc.catalog.Sections), sec.Intro),
	})
	svc.emitQuestionLocked(s, sec.Questions[0])
}

func (svc *QuestionnaireService) emitQuestionLocked(s *Session, q catalog.Question) {
	opts := make([]models.QuestionOption, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, models.QuestionOption{Value: o.Value, Label: o.Label})
	}
	svc.orch.appendLocked(s, models.ChatMessage{
		Kind:       models.KindQuestion,
		Text:       q.Prompt,
		QuestionID: q.ID,
		Options:    opts,
	})
}

// Answer records one answer for the question currently on screen. A critical
// answer at or above the threshold deterministically inserts the crisis
// resource prompt after the user's answer and before the next question; that
// branch is never skipped.
func (svc *QuestionnaireService) Answer(s *Session, questionID string, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CurrentSection == "" {
		return NewInvalidError("no section in progress")
	}
	last, ok := s.lastMessage()
	if !ok || last.Kind != models.KindQuestion || last.QuestionID != questionID {
		return NewInvalidError("this question has already been answered")
	}
	sec, ok := svc.catalog.Section(s.CurrentSection)
	if !ok {
		return NewNotFoundError("unknown section " + s.CurrentSection)
	}
	q := sec.Questions[s.QuestionIndex]
	if q.ID != questionID {
		return NewInvalidError("unexpected question " + questionID)
	}
	opt, ok := q.Option(value)
	if !ok {
		return NewInvalidError("réponse invalide")
	}

	s.SectionAnswers[q.ID] = value
	s.Answers[q.ID] = value
	if svc.store != nil {
		a := models.Answer{QuestionID: q.ID, SectionID: sec.ID, Value: value, Label: opt.Label}
		if err := svc.store.InsertAnswer(s.UserID, a); err != nil {
			svc.log.Warnw("persist answer", "user_id", s.UserID, "question_id", q.ID, "error", err)
		}
	}

	svc.orch.appendLocked(s, models.ChatMessage{Role: models.RoleUser, Kind: models.KindText, Text: opt.Label})

	if q.Critical && value >= catalog.CriticalThreshold {
		svc.orch.appendLocked(s, models.ChatMessage{
			Kind:      models.KindSOS,
			Text:      "Tu n'es pas seule. " + catalog.SOSNumber + " dispo 24h/24.",
			SOSNumber: catalog.SOSNumber,
		})
	}

	if next := s.QuestionIndex + 1; next < len(sec.Questions) {
		s.QuestionIndex = next
		svc.emitQuestionLocked(s, sec.Questions[next])
		return nil
	}
	svc.finishSectionLocked(s, sec)
	return nil
}

func (svc *QuestionnaireService) finishSectionLocked(s *Session, sec catalog.Section) {
	svc.orch.appendLocked(s, models.ChatMessage{Kind: models.KindText, Text: sec.Summarize(s.SectionAnswers)})
	s.CompletedSections = append(s.CompletedSections, sec.ID)
	s.CurrentSection = ""
	s.QuestionIndex = 0

	if next, ok := svc.catalog.NextSection(s.CompletedSections); ok {
		svc.orch.appendLocked(s, models.ChatMessage{
			Kind:          models.KindContinueChoice,
			Text:          "On continue ?",
			NextSectionID: next.ID,
		})
		return
	}
	svc.finishAllLocked(s)
}

// finishAllLocked runs the axis scorer synchronously once the last section
// completes, and offers the focus candidates.
func (svc *QuestionnaireService) finishAllLocked(s *Session) {
	s.Axes = ScoreAxes(svc.catalog, s.Answers)
	candidates := FocusCandidates(s.Axes)

	if len(candidates) == 0 {
		svc.orch.appendLocked(s, models.ChatMessage{
			Kind: models.KindText,
			Text: fmt.Sprintf("Merci %s 💜\n\nTout semble plutôt bien aller pour toi en ce moment. Je reste là si tu as besoin de parler.", s.Profile.Name),
		})
		return
	}

	lines := ""
	axes := make([]models.AxisCandidate, 0, len(candidates))
	for _, c := range candidates {
		lines += fmt.Sprintf("• %s **%s**\n", c.Axis.Icon, c.Axis.Label)
		axes = append(axes, models.AxisCandidate{ID: c.Axis.ID, Icon: c.Axis.Icon, Label: c.Axis.Label, Score: c.Score})
	}
	svc.orch.appendLocked(s, models.ChatMessage{
		Kind: models.KindAxisPicker,
		Text: fmt.Sprintf("Merci %s 💜\n\nVoici ce que j'ai remarqué:\n\n%s\nPriorité ?", s.Profile.Name, lines),
		Axes: axes,
	})
}
