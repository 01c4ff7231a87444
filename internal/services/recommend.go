package services

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eclore/eclore/internal/catalog"
	"github.com/eclore/eclore/internal/models"
)

// RecommendationStore is the write side for the exercise completion log.
type RecommendationStore interface {
	InsertExerciseCompletion(userID string, e models.ExerciseCompletion) error
}

// RecommendationService maps a focus axis to its suggested exercises and
// tips, and keeps the append-only completion log.
type RecommendationService struct {
	store   RecommendationStore
	catalog *catalog.Catalog
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewRecommendationService(store RecommendationStore, cat *catalog.Catalog, log *zap.SugaredLogger) *RecommendationService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &RecommendationService{
		store:   store,
		catalog: cat,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ExercisesFor returns the exercises recommended for an axis, in catalog
// order. An unknown or empty axis id falls back to the default exercise.
func (svc *RecommendationService) ExercisesFor(axisID string) []catalog.Exercise {
	axis, ok := svc.catalog.Axis(axisID)
	if !ok || len(axis.Exercises) == 0 {
		if def, ok := svc.catalog.Exercise(catalog.DefaultExerciseID); ok {
			return []catalog.Exercise{def}
		}
		return nil
	}
	out := make([]catalog.Exercise, 0, len(axis.Exercises))
	for _, id := range axis.Exercises {
		if e, ok := svc.catalog.Exercise(id); ok {
			out = append(out, e)
		}
	}
	return out
}

// FirstExerciseID returns the first exercise recommended for an axis, or
// the default breathing exercise when the axis has none.
func (svc *RecommendationService) FirstExerciseID(axisID string) string {
	if axis, ok := svc.catalog.Axis(axisID); ok && len(axis.Exercises) > 0 {
		return axis.Exercises[0]
	}
	return catalog.DefaultExerciseID
}

// TipsFor returns the axis's tips, if any.
func (svc *RecommendationService) TipsFor(axisID string) []string {
	if axis, ok := svc.catalog.Axis(axisID); ok {
		return axis.Tips
	}
	return nil
}

// PlanMessage renders the recommendation plan emitted after focus selection.
func (svc *RecommendationService) PlanMessage(primary catalog.Axis) string {
	titles := make([]string, 0, len(primary.Exercises))
	for _, e := range svc.ExercisesFor(primary.ID) {
		titles = append(titles, e.Title)
	}
	return "📅 **TON PROGRAMME**\n\n" +
		"• Check-in quotidien pour suivre ton " + strings.ToLower(primary.Label) + "\n" +
		"• Exercices recommandés : " + strings.Join(titles, ", ") + "\n" +
		"• Conseils personnalisés\n\n" +
		"💜 Je suis là pour t'accompagner à ton rythme."
}

// Complete appends one entry to the completion log.
func (svc *RecommendationService) Complete(s *Session, exerciseID string) error {
	if _, ok := svc.catalog.Exercise(exerciseID); !ok {
		return NewNotFoundError("unknown exercise " + exerciseID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	done := models.ExerciseCompletion{ExerciseID: exerciseID, CompletedAt: svc.now()}
	s.Exercises = append(s.Exercises, done)
	if svc.store != nil {
		if err := svc.store.InsertExerciseCompletion(s.UserID, done); err != nil {
			svc.log.Warnw("persist exercise completion", "user_id", s.UserID, "exercise_id", exerciseID, "error", err)
		}
	}
	return nil
}
