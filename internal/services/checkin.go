package services

import (
	"time"

	"go.uber.org/zap"

	"github.com/eclore/eclore/internal/models"
)

// CheckInStore is the write side the check-in engine needs; the insert has
// upsert-by-day semantics.
type CheckInStore interface {
	UpsertCheckIn(userID string, c models.CheckIn) error
}

// MoodAction is one suggested follow-up of a check-in response.
type MoodAction struct {
	Label      string `json:"label"`
	Act        string `json:"act"` // "chat", "exercise" or "close"
	ExerciseID string `json:"exercise_id,omitempty"`
}

// MoodResponse is the contextual reaction to a submitted mood.
type MoodResponse struct {
	Text    string       `json:"text"`
	Actions []MoodAction `json:"actions"`
}

// CheckInService captures one mood value per calendar day. A second
// submission the same day overwrites the first instead of appending.
type CheckInService struct {
	store CheckInStore
	rec   *RecommendationService
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewCheckInService(store CheckInStore, rec *RecommendationService, log *zap.SugaredLogger) *CheckInService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &CheckInService{
		store: store,
		rec:   rec,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CheckIn records today's mood and derives the response from the three mood
// buckets: low (<=2), mid (==3), high (>=4). Low mood suggests opening the
// chat and the first exercise of the primary axis; mid is informational
// only; high is a plain acknowledgment.
func (svc *CheckInService) CheckIn(s *Session, mood int, note string) (models.CheckIn, MoodResponse, error) {
	if mood < 1 || mood > 5 {
		return models.CheckIn{}, MoodResponse{}, NewInvalidError("l'humeur doit être entre 1 et 5")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ci := models.CheckIn{Mood: mood, Date: dayOf(svc.now()), Note: note}
	replaced := false
	for i := range s.CheckIns {
		if s.CheckIns[i].Date == ci.Date {
			s.CheckIns[i] = ci
			replaced = true
			break
		}
	}
	if !replaced {
		s.CheckIns = append(s.CheckIns, ci)
	}
	if svc.store != nil {
		if err := svc.store.UpsertCheckIn(s.UserID, ci); err != nil {
			svc.log.Warnw("persist check-in", "user_id", s.UserID, "error", err)
		}
	}

	var resp MoodResponse
	switch {
	case mood <= 2:
		resp = MoodResponse{
			Text: "Journée difficile. Pas seule.",
			Actions: []MoodAction{
				{Label: "Parler", Act: "chat"},
				{Label: "🌬️", Act: "exercise", ExerciseID: svc.rec.FirstExerciseID(s.Selected.Primary)},
			},
		}
	case mood == 3:
		resp = MoodResponse{
			Text:    "\"Bof\" c'est honnête.",
			Actions: []MoodAction{{Label: "Ok", Act: "close"}},
		}
	default:
		resp = MoodResponse{
			Text:    "Super ! 💜",
			Actions: []MoodAction{{Label: "Ok", Act: "close"}},
		}
	}
	return ci, resp, nil
}
