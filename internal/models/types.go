package models

import "time"

// User is an account holder. One user owns exactly one companion session.
type User struct {
	ID        string
	Email     string
	PassHash  []byte
	CreatedAt time.Time
}

// FeedingMode describes how the baby is currently fed.
type FeedingMode string

const (
	FeedingBreast FeedingMode = "breast"
	FeedingBottle FeedingMode = "bottle"
	FeedingMixed  FeedingMode = "mixed"
	FeedingWeaned FeedingMode = "weaned"
)

// Profile holds the fields collected during onboarding. It is created by the
// onboarding flow and only mutated by onboarding or an explicit edit.
type Profile struct {
	Name        string
	BabyName    string
	BabyDate    time.Time // baby's birth date; zero when not yet collected
	Feeding     FeedingMode
	InitialMood int // 1..3 as captured by the onboarding mood step
}

// BabyAgeWeeks returns the baby's age in whole weeks at the given time,
// never negative. Returns false when no birth date has been collected.
func (p Profile) BabyAgeWeeks(now time.Time) (int, bool) {
	if p.BabyDate.IsZero() {
		return 0, false
	}
	w := int(now.Sub(p.BabyDate).Hours() / (24 * 7))
	if w < 0 {
		w = 0
	}
	return w, true
}

// ProfileRecord is the persisted form of a profile: the fields collected so
// far plus how far onboarding has progressed. Step counts submitted script
// steps; Completed flips when the user confirms the final step.
type ProfileRecord struct {
	Profile   Profile
	Step      int
	Completed bool
}

// Answer records one questionnaire answer.
type Answer struct {
	QuestionID string
	SectionID  string
	Value      int
	Label      string
}

// CheckIn is a once-per-day mood capture. Date uses the "2006-01-02" layout;
// a second check-in on the same date overwrites the first.
type CheckIn struct {
	Mood int
	Date string
	Note string
}

// SelectedAxes is the user's chosen focus after scoring.
// Primary never appears in Secondary; len(Secondary) <= 2.
type SelectedAxes struct {
	Primary   string
	Secondary []string
}

// ExerciseCompletion is one entry in the append-only completion log.
type ExerciseCompletion struct {
	ExerciseID  string
	CompletedAt time.Time
}

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageKind tags the payload variant of a ChatMessage. Every kind other
// than KindText carries an interactive affordance which is live only while
// the message is the most recent transcript entry.
type MessageKind string

const (
	KindText            MessageKind = "text"
	KindQuestion        MessageKind = "question"
	KindAxisPicker      MessageKind = "axis_picker"
	KindSecondaryPicker MessageKind = "secondary_picker"
	KindContinueChoice  MessageKind = "continue_choice"
	KindStartChoice     MessageKind = "start_choice"
	KindSOS             MessageKind = "sos"
	KindExercise        MessageKind = "exercise"
)

// QuestionOption is one selectable answer of an embedded question.
type QuestionOption struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// AxisCandidate is one entry of an axis picker affordance.
type AxisCandidate struct {
	ID    string `json:"id"`
	Icon  string `json:"icon"`
	Label string `json:"label"`
	Score int    `json:"score"`
}

// ChatMessage is one transcript entry. The transcript is append-only and is
// never reordered; only the fields relevant to Kind are populated.
type ChatMessage struct {
	ID            string           `json:"id"`
	Role          Role             `json:"role"`
	Kind          MessageKind      `json:"kind"`
	Text          string           `json:"text,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	QuestionID    string           `json:"question_id,omitempty"`
	Options       []QuestionOption `json:"options,omitempty"`
	Axes          []AxisCandidate  `json:"axes,omitempty"`
	PrimaryID     string           `json:"primary_id,omitempty"`
	NextSectionID string           `json:"next_section_id,omitempty"`
	ExerciseID    string           `json:"exercise_id,omitempty"`
	SOSNumber     string           `json:"sos_number,omitempty"`
}

// Affordance reports whether the message carries an interactive payload.
func (m ChatMessage) Affordance() bool { return m.Kind != KindText }

// AwaitsReply reports whether the engine is waiting on this message to be
// answered. Such a prompt is only answerable while it is the most recent
// transcript entry, so nothing scripted may be appended over it.
func (m ChatMessage) AwaitsReply() bool {
	switch m.Kind {
	case KindQuestion, KindAxisPicker, KindSecondaryPicker, KindContinueChoice:
		return true
	}
	return false
}
