package services

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/eclore/eclore/internal/models"
)

// Reminder nudges users who have not checked in today. It only touches
// sessions already loaded in memory; users who never came back are left
// alone.
type Reminder struct {
	sessions *SessionManager
	orch     *Orchestrator
	log      *zap.SugaredLogger
	now      func() time.Time
	cron     *cron.Cron
}

const reminderText = "Coucou, comment tu te sens aujourd'hui ? Un petit check-in ? 💜"

func NewReminder(sessions *SessionManager, orch *Orchestrator, log *zap.SugaredLogger) *Reminder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reminder{
		sessions: sessions,
		orch:     orch,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start schedules the daily run. spec uses the standard cron format, for
// example "0 18 * * *" for 18:00 every day.
func (r *Reminder) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, r.Run); err != nil {
		return err
	}
	c.Start()
	r.cron = c
	r.log.Infow("check-in reminder scheduled", "spec", spec)
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (r *Reminder) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Run appends the nudge to every eligible session. A session is eligible
// when onboarding finished, no check-in exists for today, the last
// transcript entry is not already the nudge and no scripted prompt is
// awaiting its answer.
func (r *Reminder) Run() {
	today := dayOf(r.now())
	for _, s := range r.sessions.Active() {
		if r.eligible(s, today) {
			r.orch.AppendScripted(s, models.ChatMessage{Kind: models.KindText, Text: reminderText})
			r.log.Debugw("check-in reminder sent", "user_id", s.UserID)
		}
	}
}

func (r *Reminder) eligible(s *Session, today string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ProfileSaved {
		return false
	}
	if _, ok := s.CheckInOn(today); ok {
		return false
	}
	if last, ok := s.lastMessage(); ok {
		if last.Text == reminderText || last.AwaitsReply() {
			return false
		}
	}
	return true
}
