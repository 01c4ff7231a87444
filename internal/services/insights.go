package services

import (
	"github.com/eclore/eclore/internal/catalog"
	"github.com/eclore/eclore/internal/models"
)

// Insights is a read-only snapshot of the session's progress, used by the
// home screen.
type Insights struct {
	TotalCheckIns           int                 `json:"total_check_ins"`
	RecentMoods             []int               `json:"recent_moods"` // last 7, oldest first
	LastCheckIn             *models.CheckIn     `json:"last_check_in,omitempty"`
	ExerciseCounts          map[string]int      `json:"exercise_counts"`
	QuestionnaireCompletion int                 `json:"questionnaire_completion"` // percent
	Selected                models.SelectedAxes `json:"selected"`
}

// InsightsService aggregates counters from session state; it is pure and
// holds no store.
type InsightsService struct {
	catalog *catalog.Catalog
}

func NewInsightsService(cat *catalog.Catalog) *InsightsService {
	return &InsightsService{catalog: cat}
}

// Build computes the insights snapshot.
func (svc *InsightsService) Build(s *Session) Insights {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := Insights{
		TotalCheckIns:  len(s.CheckIns),
		ExerciseCounts: map[string]int{},
		Selected:       s.Selected,
	}

	start := len(s.CheckIns) - 7
	if start < 0 {
		start = 0
	}
	for _, c := range s.CheckIns[start:] {
		in.RecentMoods = append(in.RecentMoods, c.Mood)
	}
	if last, ok := s.LastCheckIn(); ok {
		ci := last
		in.LastCheckIn = &ci
	}

	for _, e := range s.Exercises {
		in.ExerciseCounts[e.ExerciseID]++
	}

	if total := len(svc.catalog.Sections); total > 0 {
		in.QuestionnaireCompletion = len(s.CompletedSections) * 100 / total
	}
	return in
}
