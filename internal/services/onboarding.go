package services

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eclore/eclore/internal/catalog"
	"github.com/eclore/eclore/internal/models"
)

// OnboardingStore is the write side the onboarding flow needs. The record
// is upserted after every submitted step so a restart resumes where the
// user left off.
type OnboardingStore interface {
	UpsertProfile(userID string, rec models.ProfileRecord) error
}

// OnboardingService walks the user through the scripted onboarding steps,
// collecting the profile fields one at a time.
type OnboardingService struct {
	store   OnboardingStore
	orch    *Orchestrator
	quest   *QuestionnaireService
	catalog *catalog.Catalog
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewOnboardingService(store OnboardingStore, orch *Orchestrator, quest *QuestionnaireService, cat *catalog.Catalog, log *zap.SugaredLogger) *OnboardingService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &OnboardingService{
		store:   store,
		orch:    orch,
		quest:   quest,
		catalog: cat,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start emits the first script line for a fresh session.
func (svc *OnboardingService) Start(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ProfileSaved || s.OnboardStep > 0 || len(s.Transcript) > 0 {
		return
	}
	svc.emitStepLocked(s)
}

// CurrentStep returns the script step the session is waiting on.
func (svc *OnboardingService) CurrentStep(s *Session) (catalog.OnboardingStep, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OnboardStep >= len(svc.catalog.Onboarding) {
		return catalog.OnboardingStep{}, false
	}
	return svc.catalog.Onboarding[s.OnboardStep], true
}

// Submit records the user's value for the given step, echoes it into the
// transcript and emits the next script line. The step id must match the
// step the session is currently waiting on.
func (svc *OnboardingService) Submit(s *Session, stepID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ProfileSaved {
		return NewConflictError("onboarding is already finished")
	}
	if s.OnboardStep >= len(svc.catalog.Onboarding) {
		return NewInvalidError("no onboarding step pending")
	}
	step := svc.catalog.Onboarding[s.OnboardStep]
	if step.ID != stepID {
		return NewInvalidError("unexpected step " + stepID)
	}

	echo := ""
	switch step.Type {
	case catalog.StepMessage:
		// acknowledgement only, nothing to record

	case catalog.StepInput:
		value = strings.TrimSpace(value)
		if value == "" {
			return NewInvalidError("ce champ est requis")
		}
		svc.setField(s, step.Field, value)
		echo = value

	case catalog.StepDate:
		d, err := time.Parse("2006-01-02", strings.TrimSpace(value))
		if err != nil {
			return NewInvalidError("date invalide")
		}
		if d.After(svc.now()) {
			return NewInvalidError("la date est dans le futur")
		}
		s.Profile.BabyDate = d
		echo = d.Format("02/01/2006")

	case catalog.StepChoice:
		var opt *catalog.ChoiceOption
		for i := range step.Options {
			if step.Options[i].Value == value {
				opt = &step.Options[i]
				break
			}
		}
		if opt == nil {
			return NewInvalidError("choix invalide")
		}
		svc.setField(s, step.Field, opt.Value)
		echo = opt.Label

	case catalog.StepDone:
		return NewInvalidError("onboarding is waiting for the final choice")
	}

	if echo != "" {
		svc.orch.appendLocked(s, models.ChatMessage{Role: models.RoleUser, Kind: models.KindText, Text: echo})
	}
	s.OnboardStep++
	if svc.store != nil {
		rec := models.ProfileRecord{Profile: s.Profile, Step: s.OnboardStep}
		if err := svc.store.UpsertProfile(s.UserID, rec); err != nil {
			svc.log.Warnw("persist onboarding progress", "user_id", s.UserID, "step", s.OnboardStep, "error", err)
		}
	}
	svc.emitStepLocked(s)
	return nil
}

// Finish resolves the terminal branch: persist the profile, then either dive
// straight into the questionnaire or hand the user over to her space.
func (svc *OnboardingService) Finish(s *Session, continueNow bool) error {
	s.mu.Lock()
	if s.ProfileSaved {
		s.mu.Unlock()
		return NewConflictError("onboarding is already finished")
	}
	if s.OnboardStep >= len(svc.catalog.Onboarding) || svc.catalog.Onboarding[s.OnboardStep].Type != catalog.StepDone {
		s.mu.Unlock()
		return NewInvalidError("onboarding is not at its final step")
	}
	s.OnboardStep = len(svc.catalog.Onboarding)
	s.ProfileSaved = true
	if svc.store != nil {
		rec := models.ProfileRecord{Profile: s.Profile, Step: s.OnboardStep, Completed: true}
		if err := svc.store.UpsertProfile(s.UserID, rec); err != nil {
			svc.log.Warnw("persist profile", "user_id", s.UserID, "error", err)
		}
	}

	if !continueNow {
		svc.orch.appendLocked(s, models.ChatMessage{
			Kind: models.KindStartChoice,
			Text: "Coucou " + s.Profile.Name + " ! 💜\n\nQuand tu voudras, on pourra continuer le questionnaire pour que je puisse mieux t'accompagner.\n\nEn attendant, explore ton espace !",
		})
		s.mu.Unlock()
		return nil
	}

	svc.orch.appendLocked(s, models.ChatMessage{
		Kind: models.KindText,
		Text: "C'est parti ! Ces questions vont m'aider à personnaliser ton accompagnement. 💜",
	})
	s.mu.Unlock()
	return svc.quest.StartNext(s)
}

func (svc *OnboardingService) setField(s *Session, field, value string) {
	switch field {
	case "name":
		s.Profile.Name = value
	case "babyName":
		s.Profile.BabyName = value
	case "feeding":
		s.Profile.Feeding = models.FeedingMode(value)
	case "initialMood":
		if n, err := strconv.Atoi(value); err == nil {
			s.Profile.InitialMood = n
		}
	}
}

// emitStepLocked appends the prompt of the step the session now waits on.
func (svc *OnboardingService) emitStepLocked(s *Session) {
	if s.OnboardStep >= len(svc.catalog.Onboarding) {
		return
	}
	step := svc.catalog.Onboarding[s.OnboardStep]
	text := svc.substitute(s, step.Text)
	if text == "" {
		return
	}
	kind := models.KindText
	if step.Type == catalog.StepDone {
		kind = models.KindStartChoice
	}
	svc.orch.appendLocked(s, models.ChatMessage{Kind: kind, Text: text})
}

func (svc *OnboardingService) substitute(s *Session, text string) string {
	baby := s.Profile.BabyName
	if baby == "" {
		baby = "bébé"
	}
	text = strings.ReplaceAll(text, "{babyName}", baby)
	return strings.ReplaceAll(text, "{name}", s.Profile.Name)
}
