package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eclore/eclore/internal/catalog"
	"github.com/eclore/eclore/internal/models"
)

// ReplyTurn is one prior conversation turn sent to the reply generator.
type ReplyTurn struct {
	Role    models.Role
	Content string
}

// ReplyContext is rebuilt from live session state before every completion
// request; it is never cached across turns.
type ReplyContext struct {
	UserName      string
	BabyName      string
	BabyAgeWeeks  *int
	Feeding       models.FeedingMode
	PrimaryAxis   string
	SecondaryAxes []string
	LastCheckIn   *models.CheckIn
}

// ReplyGenerator is the external completion collaborator.
type ReplyGenerator interface {
	Generate(ctx context.Context, turns []ReplyTurn, rc ReplyContext) (string, error)
}

// ChatStore is the write side the orchestrator needs from persistence.
type ChatStore interface {
	InsertChatMessage(userID string, m models.ChatMessage) error
}

// FallbackReply is appended when the completion request fails or times out.
const FallbackReply = "Désolée, je n'ai pas pu répondre. Réessaie. 💜"

// Orchestrator owns the transcript. Every scripted message from the other
// engine components goes through AppendScripted, and free-text user input
// goes through SendUserText; both append strictly in call order.
type Orchestrator struct {
	store          ChatStore
	gen            ReplyGenerator
	catalog        *catalog.Catalog
	log            *zap.SugaredLogger
	now            func() time.Time
	requestTimeout time.Duration
}

func NewOrchestrator(store ChatStore, gen ReplyGenerator, cat *catalog.Catalog, log *zap.SugaredLogger) *Orchestrator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		store:          store,
		gen:            gen,
		catalog:        cat,
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
		requestTimeout: 30 * time.Second,
	}
}

// appendLocked stamps and appends a message. Callers hold s.mu.
func (o *Orchestrator) appendLocked(s *Session, m models.ChatMessage) models.ChatMessage {
	if m.ID == "" {
		m.ID = shortID(12)
	}
	if m.Role == "" {
		m.Role = models.RoleAssistant
	}
	if m.Kind == "" {
		m.Kind = models.KindText
	}
	m.CreatedAt = o.now()
	s.Transcript = append(s.Transcript, m)
	if o.store != nil {
		if err := o.store.InsertChatMessage(s.UserID, m); err != nil {
			o.log.Warnw("persist chat message", "user_id", s.UserID, "error", err)
		}
	}
	return m
}

// AppendScripted appends one scripted message to the transcript.
func (o *Orchestrator) AppendScripted(s *Session, m models.ChatMessage) models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return o.appendLocked(s, m)
}

// Transcript returns a snapshot copy of the session transcript.
func (o *Orchestrator) Transcript(s *Session) []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.Transcript))
	copy(out, s.Transcript)
	return out
}

// SendUserText appends the user's message, issues one completion request and
// appends the reply. Empty input and a second call while a request is in
// flight are rejected; a generation failure becomes the fixed fallback entry
// and never escapes, and the loading flag is always cleared. A scripted
// prompt still awaiting its answer is re-appended after the reply so it
// stays the most recent entry and remains answerable.
func (o *Orchestrator) SendUserText(ctx context.Context, s *Session, text string) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, NewInvalidError("message is empty")
	}

	s.mu.Lock()
	if s.Loading {
		s.mu.Unlock()
		return models.ChatMessage{}, NewInvalidError("a reply is already on its way")
	}
	s.Loading = true
	pending, hasPending := s.lastMessage()
	o.appendLocked(s, models.ChatMessage{Role: models.RoleUser, Kind: models.KindText, Text: text})
	turns := o.collectTurnsLocked(s)
	rc := o.buildContextLocked(s)
	s.mu.Unlock()

	if o.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.requestTimeout)
		defer cancel()
	}

	var reply string
	if o.gen == nil {
		reply = FallbackReply
	} else if generated, err := o.gen.Generate(ctx, turns, rc); err != nil {
		o.log.Warnw("reply generation failed", "user_id", s.UserID, "error", err)
		reply = FallbackReply
	} else if strings.TrimSpace(generated) == "" {
		reply = FallbackReply
	} else {
		reply = generated
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Loading = false
	msg := o.appendLocked(s, models.ChatMessage{Role: models.RoleAssistant, Kind: models.KindText, Text: reply})
	if hasPending && pending.AwaitsReply() {
		pending.ID = ""
		o.appendLocked(s, pending)
	}
	return msg, nil
}

// collectTurnsLocked flattens the transcript into plain user/assistant turns
// for the generator, keeping only entries that carry text.
func (o *Orchestrator) collectTurnsLocked(s *Session) []ReplyTurn {
	turns := make([]ReplyTurn, 0, len(s.Transcript))
	for _, m := range s.Transcript {
		if m.Text == "" {
			continue
		}
		turns = append(turns, ReplyTurn{Role: m.Role, Content: m.Text})
	}
	return turns
}

func (o *Orchestrator) buildContextLocked(s *Session) ReplyContext {
	rc := ReplyContext{
		UserName:      s.Profile.Name,
		BabyName:      s.Profile.BabyName,
		Feeding:       s.Profile.Feeding,
		PrimaryAxis:   s.Selected.Primary,
		SecondaryAxes: append([]string(nil), s.Selected.Secondary...),
	}
	if w, ok := s.Profile.BabyAgeWeeks(o.now()); ok {
		rc.BabyAgeWeeks = &w
	}
	if last, ok := s.LastCheckIn(); ok {
		ci := last
		rc.LastCheckIn = &ci
	}
	return rc
}

// Greet opens the chat with a short scripted hello when the transcript is
// still empty. Before focus selection the greeting carries the affordance to
// start the questionnaire.
func (o *Orchestrator) Greet(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Transcript) > 0 {
		return
	}
	kind := models.KindText
	if !s.ProfileComplete {
		kind = models.KindStartChoice
	}
	o.appendLocked(s, models.ChatMessage{Kind: kind, Text: "Coucou " + s.Profile.Name + " ! 💜"})
}
