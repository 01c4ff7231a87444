package services

import (
	"strings"
	"testing"

	"github.com/eclore/eclore/internal/models"
)

func TestQuestionnaireSectionFlow(t *testing.T) {
	eng := newTestEngine(t, nil)
	s := NewSession("u1")
	s.Profile.Name = "Claire"

	if err := eng.quest.StartNext(s); err != nil {
		t.Fatalf("StartNext: %v", err)
	}
	if s.CurrentSection != "emotions" {
		t.Fatalf("expected emotions section, got %q", s.CurrentSection)
	}
	last := lastOf(t, s)
	if last.Kind != models.KindQuestion || last.QuestionID != "e1" {
		t.Fatalf("expected question e1 on screen, got %+v", last)
	}
	if len(last.Options) != 4 {
		t.Fatalf("expected 4 options, got %d", len(last.Options))
	}

	if err := eng.quest.StartNext(s); err == nil {
		t.Fatalf("expected conflict starting a second section mid-flight")
	}

	if err := eng.quest.Answer(s, "e2", 1); err == nil {
		t.Fatalf("expected error answering a question that is not on screen")
	}
	if err := eng.quest.Answer(s, "e1", 9); err == nil {
		t.Fatalf("expected error for a value outside the options")
	}

	if err := eng.quest.Answer(s, "e1", 2); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	// the answer is echoed as its label, then the next question follows
	echo := s.Transcript[len(s.Transcript)-2]
	if echo.Role != models.RoleUser || echo.Text != "Assez souvent" {
		t.Fatalf("expected echoed label, got %+v", echo)
	}
	if last := lastOf(t, s); last.QuestionID != "e2" {
		t.Fatalf("expected question e2 next, got %q", last.QuestionID)
	}

	if err := eng.quest.Answer(s, "e1", 2); err == nil {
		t.Fatalf("expected error re-answering an already answered question")
	}

	if got := eng.store.answers["u1"]; len(got) != 1 || got[0].QuestionID != "e1" || got[0].Value != 2 {
		t.Fatalf("unexpected persisted answers: %+v", got)
	}
}

func TestQuestionnaireSectionSummaryAndContinue(t *testing.T) {
	eng := newTestEngine(t, nil)
	s := NewSession("u1")

	if err := eng.quest.StartNext(s); err != nil {
		t.Fatalf("StartNext: %v", err)
	}
	for s.CurrentSection != "" {
		answerCurrent(t, eng, s, 0)
	}

	// all-zero answers land below the threshold of the total rule
	summary := s.Transcript[len(s.Transcript)-2]
	if !strings.Contains(summary.Text, "tenir le coup") {
		t.Fatalf("expected low summary, got %q", summary.Text)
	}
	last := lastOf(t, s)
	if last.Kind != models.KindContinueChoice || last.NextSectionID != "sleep" {
		t.Fatalf("expected continue choice for sleep, got %+v", last)
	}
	if len(s.CompletedSections) != 1 || s.CompletedSections[0] != "emotions" {
		t.Fatalf("unexpected completed sections: %v", s.CompletedSections)
	}

	if err := eng.quest.Continue(s); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if s.CurrentSection != "sleep" {
		t.Fatalf("expected sleep section, got %q", s.CurrentSection)
	}
}

func TestQuestionnaireDefer(t *testing.T) {
	eng := newTestEngine(t, nil)
	s := NewSession("u1")

	if err := eng.quest.StartNext(s); err != nil {
		t.Fatalf("StartNext: %v", err)
	}
	for s.CurrentSection != "" {
		answerCurrent(t, eng, s, 0)
	}
	if err := eng.quest.Defer(s); err != nil {
		t.Fatalf("Defer: %v", err)
	}
	// the choice is now superseded, answering it again is rejected
	if err := eng.quest.Continue(s); err == nil {
		t.Fatalf("expected error continuing a resolved prompt")
	}
	if err := eng.quest.Defer(s); err == nil {
		t.Fatalf("expected error deferring a resolved prompt")
	}

	// the deferred questionnaire resumes at the next uncompleted section
	if err := eng.quest.StartNext(s); err != nil {
		t.Fatalf("StartNext after defer: %v", err)
	}
	if s.CurrentSection != "sleep" {
		t.Fatalf("expected sleep section on resume, got %q", s.CurrentSection)
	}
}

func TestCriticalAnswerInsertsCrisisPrompt(t *testing.T) {
	eng := newTestEngine(t, nil)
	s := NewSession("u1")

	if err := eng.quest.StartNext(s); err != nil {
		t.Fatalf("StartNext: %v", err)
	}
	answerCurrent(t, eng, s, 0) // e1
	answerCurrent(t, eng, s, 0) // e2
	answerCurrent(t, eng, s, 0) // e3
	answerCurrent(t, eng, s, 2) // e4, critical, at threshold

	// expected tail: echo, SOS, section summary, continue choice
	n := len(s.Transcript)
	if n < 4 {
		t.Fatalf("transcript too short: %d", n)
	}
	if s.Transcript[n-4].Role != models.RoleUser {
		t.Fatalf("expected echoed answer, got %+v", s.Transcript[n-4])
	}
	sos := s.Transcript[n-3]
	if sos.Kind != models.KindSOS || sos.SOSNumber != "3114" {
		t.Fatalf("expected crisis prompt after the critical answer, got %+v", sos)
	}
	if s.Transcript[n-1].Kind != models.KindContinueChoice {
		t.Fatalf("expected continue choice at the end, got %+v", s.Transcript[n-1])
	}
}

func TestCriticalAnswerBelowThresholdStaysQuiet(t *testing.T) {
	eng := newTestEngine(t, nil)
	s := NewSession("u1")

	if err := eng.quest.StartNext(s); err != nil {
		t.Fatalf("StartNext: %v", err)
	}
	answerCurrent(t, eng, s, 0)
	answerCurrent(t, eng, s, 0)
	answerCurrent(t, eng, s, 0)
	answerCurrent(t, eng, s, 1) // critical but below threshold

	for _, m := range s.Transcript {
		if m.Kind == models.KindSOS {
			t.Fatalf("unexpected crisis prompt: %+v", m)
		}
	}
}

func TestQuestionnaireCompletionOffersFocusPicker(t *testing.T) {
	eng := newTestEngine(t, nil)
	s := NewSession("u1")
	s.Profile.Name = "Claire"

	completeQuestionnaire(t, eng, s, 1)

	last := lastOf(t, s)
	if last.Kind != models.KindAxisPicker {
		t.Fatalf("expected axis picker, got %+v", last)
	}
	if len(last.Axes) == 0 || len(last.Axes) > maxFocusCandidates {
		t.Fatalf("unexpected candidate count: %d", len(last.Axes))
	}
	// with every answer at 1, sleep and body total 2 and rank first
	if last.Axes[0].ID != "sleep" || last.Axes[1].ID != "body" {
		t.Fatalf("unexpected candidate order: %+v", last.Axes)
	}
	if !strings.Contains(last.Text, "Claire") {
		t.Fatalf("expected the user's name in the picker text: %q", last.Text)
	}

	if err := eng.quest.StartNext(s); err == nil {
		t.Fatalf("expected conflict starting a completed questionnaire")
	}
}

func TestStartNextReemitsSupersededQuestion(t *testing.T) {
	eng := newTestEngine(t, nil)
	s := NewSession("u1")
	if err := eng.quest.StartNext(s); err != nil {
		t.Fatalf("StartNext: %v", err)
	}
	pending := lastOf(t, s)

	// a stray scripted entry pushes the question off the end of the transcript
	eng.orch.AppendScripted(s, models.ChatMessage{Kind: models.KindText, Text: "Au fait, pense à boire de l'eau."})
	if err := eng.quest.Answer(s, pending.QuestionID, 1); err == nil {
		t.Fatalf("expected the superseded question to be unanswerable")
	}

	if err := eng.quest.StartNext(s); err != nil {
		t.Fatalf("StartNext resume: %v", err)
	}
	last := lastOf(t, s)
	if last.Kind != models.KindQuestion || last.QuestionID != pending.QuestionID {
		t.Fatalf("expected the question re-emitted, got %+v", last)
	}
	// once back on screen StartNext reports the section in progress again
	if err := eng.quest.StartNext(s); err == nil {
		t.Fatalf("expected conflict with the question on screen")
	}
	if err := eng.quest.Answer(s, pending.QuestionID, 0); err != nil {
		t.Fatalf("Answer after resume: %v", err)
	}
}

func TestQuestionnaireAllZeroSkipsFocusPicker(t *testing.T) {
	eng := newTestEngine(t, nil)
	s := NewSession("u1")
	s.Profile.Name = "Claire"

	completeQuestionnaire(t, eng, s, 0)

	last := lastOf(t, s)
	if last.Kind != models.KindText {
		t.Fatalf("expected plain closing message, got %+v", last)
	}
	if !strings.Contains(last.Text, "plutôt bien aller") {
		t.Fatalf("unexpected closing text: %q", last.Text)
	}
}
