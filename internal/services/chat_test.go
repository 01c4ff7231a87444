package services

import (
	"context"
	"errors"
	"testing"

	"github.com/eclore/eclore/internal/models"
)

type stubGen struct {
	reply string
	err   error

	gotTurns []ReplyTurn
	gotCtx   ReplyContext
}

func (g *stubGen) Generate(ctx context.Context, turns []ReplyTurn, rc ReplyContext) (string, error) {
	g.gotTurns = turns
	g.gotCtx = rc
	return g.reply, g.err
}

// blockingGen parks until released, to hold a request in flight.
type blockingGen struct {
	started chan struct{}
	release chan struct{}
}

func (g *blockingGen) Generate(ctx context.Context, turns []ReplyTurn, rc ReplyContext) (string, error) {
	close(g.started)
	<-g.release
	return "enfin libre", nil
}

func TestSendUserText(t *testing.T) {
	gen := &stubGen{reply: "Je suis là pour toi. 💜"}
	eng := newTestEngine(t, gen)
	s := NewSession("u1")
	s.Profile.Name = "Claire"
	s.Selected.Primary = "sleep"
	s.CheckIns = append(s.CheckIns, models.CheckIn{Mood: 2, Date: "2026-08-30"})

	reply, err := eng.orch.SendUserText(context.Background(), s, "  Je n'en peux plus.  ")
	if err != nil {
		t.Fatalf("SendUserText: %v", err)
	}
	if reply.Text != gen.reply || reply.Role != models.RoleAssistant {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if s.Loading {
		t.Fatalf("loading flag left set")
	}
	if len(s.Transcript) != 2 {
		t.Fatalf("expected user message and reply, got %d entries", len(s.Transcript))
	}
	if s.Transcript[0].Text != "Je n'en peux plus." {
		t.Fatalf("expected trimmed user message, got %q", s.Transcript[0].Text)
	}

	// the generator sees the prior turns and the live session context
	if len(gen.gotTurns) != 1 || gen.gotTurns[0].Role != models.RoleUser {
		t.Fatalf("unexpected turns: %+v", gen.gotTurns)
	}
	if gen.gotCtx.UserName != "Claire" || gen.gotCtx.PrimaryAxis != "sleep" {
		t.Fatalf("unexpected context: %+v", gen.gotCtx)
	}
	if gen.gotCtx.LastCheckIn == nil || gen.gotCtx.LastCheckIn.Mood != 2 {
		t.Fatalf("expected last check-in in context: %+v", gen.gotCtx.LastCheckIn)
	}

	// both entries reached the store
	if got := eng.store.messages["u1"]; len(got) != 2 {
		t.Fatalf("unexpected persisted transcript: %d entries", len(got))
	}
}

func TestSendUserTextRejectsEmpty(t *testing.T) {
	eng := newTestEngine(t, &stubGen{reply: "ok"})
	s := NewSession("u1")
	if _, err := eng.orch.SendUserText(context.Background(), s, "   "); err == nil {
		t.Fatalf("expected error for blank input")
	}
	if len(s.Transcript) != 0 {
		t.Fatalf("expected untouched transcript, got %d entries", len(s.Transcript))
	}
}

func TestSendUserTextFallbackOnFailure(t *testing.T) {
	eng := newTestEngine(t, &stubGen{err: errors.New("upstream down")})
	s := NewSession("u1")

	reply, err := eng.orch.SendUserText(context.Background(), s, "Bonjour")
	if err != nil {
		t.Fatalf("SendUserText: %v", err)
	}
	if reply.Text != FallbackReply {
		t.Fatalf("expected fallback reply, got %q", reply.Text)
	}
	if s.Loading {
		t.Fatalf("loading flag left set after failure")
	}
}

func TestSendUserTextFallbackOnEmptyReply(t *testing.T) {
	eng := newTestEngine(t, &stubGen{reply: "   "})
	s := NewSession("u1")

	reply, err := eng.orch.SendUserText(context.Background(), s, "Bonjour")
	if err != nil {
		t.Fatalf("SendUserText: %v", err)
	}
	if reply.Text != FallbackReply {
		t.Fatalf("expected fallback for a blank completion, got %q", reply.Text)
	}
}

func TestSendUserTextNoGenerator(t *testing.T) {
	eng := newTestEngine(t, nil)
	s := NewSession("u1")

	reply, err := eng.orch.SendUserText(context.Background(), s, "Bonjour")
	if err != nil {
		t.Fatalf("SendUserText: %v", err)
	}
	if reply.Text != FallbackReply {
		t.Fatalf("expected fallback without a generator, got %q", reply.Text)
	}
}

func TestSendUserTextSingleInFlight(t *testing.T) {
	gen := &blockingGen{started: make(chan struct{}), release: make(chan struct{})}
	eng := newTestEngine(t, gen)
	s := NewSession("u1")

	done := make(chan error, 1)
	go func() {
		_, err := eng.orch.SendUserText(context.Background(), s, "premier")
		done <- err
	}()
	<-gen.started

	if _, err := eng.orch.SendUserText(context.Background(), s, "deuxième"); err == nil {
		t.Fatalf("expected rejection while a request is in flight")
	}

	close(gen.release)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}
	// the rejected send left no trace
	if got := len(eng.orch.Transcript(s)); got != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", got)
	}
}

func TestSendUserTextKeepsPendingQuestion(t *testing.T) {
	eng := newTestEngine(t, &stubGen{reply: "Je t'écoute."})
	s := NewSession("u1")
	if err := eng.quest.StartNext(s); err != nil {
		t.Fatalf("StartNext: %v", err)
	}
	pending := lastOf(t, s)

	if _, err := eng.orch.SendUserText(context.Background(), s, "J'ai besoin de parler d'abord."); err != nil {
		t.Fatalf("SendUserText: %v", err)
	}
	last := lastOf(t, s)
	if last.Kind != models.KindQuestion || last.QuestionID != pending.QuestionID {
		t.Fatalf("expected the question back on screen after the reply, got %+v", last)
	}
	if last.ID == pending.ID {
		t.Fatalf("expected a fresh transcript entry for the re-emitted question")
	}
	if err := eng.quest.Answer(s, pending.QuestionID, 1); err != nil {
		t.Fatalf("Answer after the chat detour: %v", err)
	}
}

func TestSendUserTextKeepsPendingPicker(t *testing.T) {
	eng := newTestEngine(t, &stubGen{reply: "Bien sûr."})
	s := NewSession("u1")
	s.Profile.Name = "Claire"
	completeQuestionnaire(t, eng, s, 1)
	if lastOf(t, s).Kind != models.KindAxisPicker {
		t.Fatalf("expected the axis picker, got %+v", lastOf(t, s))
	}

	if _, err := eng.orch.SendUserText(context.Background(), s, "Une question avant de choisir."); err != nil {
		t.Fatalf("SendUserText: %v", err)
	}
	if lastOf(t, s).Kind != models.KindAxisPicker {
		t.Fatalf("expected the picker back on screen, got %+v", lastOf(t, s))
	}
	if err := eng.focus.SelectPrimary(s, "sleep"); err != nil {
		t.Fatalf("SelectPrimary after the chat detour: %v", err)
	}
}

func TestGreet(t *testing.T) {
	eng := newTestEngine(t, nil)
	s := NewSession("u1")
	s.Profile.Name = "Claire"

	eng.orch.Greet(s)
	last := lastOf(t, s)
	if last.Kind != models.KindStartChoice {
		t.Fatalf("expected the start affordance before focus selection, got %+v", last)
	}
	eng.orch.Greet(s)
	if len(s.Transcript) != 1 {
		t.Fatalf("expected Greet to be a no-op on a non-empty transcript")
	}

	s2 := NewSession("u2")
	s2.ProfileComplete = true
	eng.orch.Greet(s2)
	if lastOf(t, s2).Kind != models.KindText {
		t.Fatalf("expected a plain greeting after focus selection")
	}
}
