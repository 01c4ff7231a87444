package services

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eclore/eclore/internal/catalog"
	"github.com/eclore/eclore/internal/models"
)

// FocusStore is the write side the focus selector needs.
type FocusStore interface {
	UpsertSelectedAxes(userID string, sel models.SelectedAxes) error
}

// FocusService lets the user pick one primary and up to two secondary axes
// from the ranked candidates surfaced after scoring.
type FocusService struct {
	store   FocusStore
	orch    *Orchestrator
	rec     *RecommendationService
	catalog *catalog.Catalog
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewFocusService(store FocusStore, orch *Orchestrator, rec *RecommendationService, cat *catalog.Catalog, log *zap.SugaredLogger) *FocusService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &FocusService{
		store:   store,
		orch:    orch,
		rec:     rec,
		catalog: cat,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SelectPrimary sets the primary focus axis. The axis must be one of the
// candidates of the picker currently on screen. When no candidate remains
// for a secondary pick the selection resolves immediately, as a skip would.
func (svc *FocusService) SelectPrimary(s *Session, axisID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastMessage()
	if !ok || last.Kind != models.KindAxisPicker {
		return NewInvalidError("no focus choice is pending")
	}
	var chosen *models.AxisCandidate
	for i := range last.Axes {
		if last.Axes[i].ID == axisID {
			chosen = &last.Axes[i]
			break
		}
	}
	if chosen == nil {
		return NewInvalidError("axe invalide")
	}
	axis, ok := svc.catalog.Axis(axisID)
	if !ok {
		return NewNotFoundError("unknown axis " + axisID)
	}

	s.Selected.Primary = axisID
	svc.orch.appendLocked(s, models.ChatMessage{Role: models.RoleUser, Kind: models.KindText, Text: axis.Icon + " " + axis.Label})

	remaining := make([]models.AxisCandidate, 0, len(last.Axes))
	for _, c := range last.Axes {
		if c.ID != axisID {
			remaining = append(remaining, c)
		}
	}
	if len(remaining) == 0 {
		svc.finalizeLocked(s, axis, nil)
		return nil
	}

	text := "On travaille sur ça ! Tu peux choisir 2 axes secondaires."
	if axis.LinkExplain != "" && anyLinked(axis, remaining) {
		text += "\n\n💡 " + axis.LinkExplain
	}
	svc.orch.appendLocked(s, models.ChatMessage{
		Kind:      models.KindSecondaryPicker,
		Text:      text,
		Axes:      remaining,
		PrimaryID: axisID,
	})
	return nil
}

// SelectSecondary accepts up to two secondary axes from the picker on
// screen, none equal to the primary, then finalizes the selection.
func (svc *FocusService) SelectSecondary(s *Session, axisIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastMessage()
	if !ok || last.Kind != models.KindSecondaryPicker {
		return NewInvalidError("no secondary choice is pending")
	}
	if len(axisIDs) > 2 {
		return NewInvalidError("deux axes secondaires maximum")
	}
	seen := map[string]bool{}
	for _, id := range axisIDs {
		if id == s.Selected.Primary {
			return NewInvalidError("l'axe prioritaire ne peut pas être secondaire")
		}
		if seen[id] {
			return NewInvalidError("axe en double")
		}
		seen[id] = true
		found := false
		for _, c := range last.Axes {
			if c.ID == id {
				found = true
				break
			}
		}
		if !found {
			return NewInvalidError("axe invalide")
		}
	}
	axis, ok := svc.catalog.Axis(s.Selected.Primary)
	if !ok {
		return NewNotFoundError("unknown axis " + s.Selected.Primary)
	}
	svc.finalizeLocked(s, axis, axisIDs)
	return nil
}

// Skip finalizes the selection with no secondary axes.
func (svc *FocusService) Skip(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.affordanceActive(models.KindSecondaryPicker) {
		return NewInvalidError("no secondary choice is pending")
	}
	axis, ok := svc.catalog.Axis(s.Selected.Primary)
	if !ok {
		return NewNotFoundError("unknown axis " + s.Selected.Primary)
	}
	svc.finalizeLocked(s, axis, nil)
	return nil
}

// finalizeLocked persists the selection, marks the profile complete, emits the
// recap, the recommendation plan, and the primary axis's starter question.
func (svc *FocusService) finalizeLocked(s *Session, primary catalog.Axis, secondary []string) {
	s.Selected.Secondary = append([]string(nil), secondary...)
	s.ProfileComplete = true
	if svc.store != nil {
		if err := svc.store.UpsertSelectedAxes(s.UserID, s.Selected); err != nil {
			svc.log.Warnw("persist selected axes", "user_id", s.UserID, "error", err)
		}
	}

	if len(secondary) == 0 {
		svc.orch.appendLocked(s, models.ChatMessage{
			Kind: models.KindText,
			Text: "Focus sur " + primary.Icon + " " + primary.Label + " !",
		})
	} else {
		recap := "🎯 **Priorité:** " + primary.Icon + " " + primary.Label + "\n"
		also := make([]string, 0, len(secondary))
		linked := false
		for _, id := range secondary {
			if a, ok := svc.catalog.Axis(id); ok {
				also = append(also, a.Icon+" "+a.Label)
			}
			for _, l := range primary.LinkedTo {
				if l == id {
					linked = true
				}
			}
		}
		recap += "📌 **Aussi:** " + strings.Join(also, ", ") + "\n"
		if linked && primary.LinkExplain != "" {
			recap += "\n💡 " + primary.LinkExplain + "\n"
		}
		svc.orch.appendLocked(s, models.ChatMessage{Kind: models.KindText, Text: recap})
	}

	svc.orch.appendLocked(s, models.ChatMessage{Kind: models.KindText, Text: svc.rec.PlanMessage(primary)})
	if first, ok := svc.catalog.Exercise(svc.rec.FirstExerciseID(primary.ID)); ok {
		svc.orch.appendLocked(s, models.ChatMessage{
			Kind:       models.KindExercise,
			Text:       first.Icon + " " + first.Title + " (" + first.Duration + ")",
			ExerciseID: first.ID,
		})
	}
	svc.orch.appendLocked(s, models.ChatMessage{Kind: models.KindText, Text: "💬 **Commençons...**\n\n" + primary.StartQuestion})
}

func anyLinked(axis catalog.Axis, candidates []models.AxisCandidate) bool {
	for _, c := range candidates {
		for _, l := range axis.LinkedTo {
			if l == c.ID {
				return true
			}
		}
	}
	return false
}
