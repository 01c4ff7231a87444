// Package catalog loads the static conversation data: the emotional axes,
// the questionnaire sections, the onboarding script and the exercise library.
// The data lives in embedded YAML files and is treated as read-only input by
// the rest of the engine; control flow never special-cases individual ids.
package catalog

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

// SOSNumber is the crisis line surfaced by critical-answer interrupts.
const SOSNumber = "3114"

// CriticalThreshold is the answer value at or above which a critical
// question triggers the crisis-resource prompt. Taken verbatim from the
// clinical source material; do not change without domain review.
const CriticalThreshold = 2

// DefaultExerciseID is suggested when no primary axis is set yet.
const DefaultExerciseID = "breath"

// Option is one selectable answer of a question.
type Option struct {
	Value int    `yaml:"value"`
	Label string `yaml:"label"`
}

// Question is a single multiple-choice questionnaire item.
type Question struct {
	ID       string   `yaml:"id"`
	Prompt   string   `yaml:"prompt"`
	Options  []Option `yaml:"options"`
	Axis     string   `yaml:"axis,omitempty"`
	Critical bool     `yaml:"critical,omitempty"`
}

// Option returns the option with the given value.
func (q Question) Option(value int) (Option, bool) {
	for _, o := range q.Options {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

// SummaryRule derives a section summary from the collected answers.
// Kind "total" compares the sum of all section answers against Threshold;
// kind "any" fires when any single answer reaches Threshold.
type SummaryRule struct {
	Kind      string `yaml:"kind"`
	Threshold int    `yaml:"threshold"`
	High      string `yaml:"high"`
	Low       string `yaml:"low"`
}

// Section is an ordered group of questions administered together.
type Section struct {
	ID        string      `yaml:"id"`
	Title     string      `yaml:"title"`
	Intro     string      `yaml:"intro"`
	Questions []Question  `yaml:"questions"`
	Summary   SummaryRule `yaml:"summary"`
}

// Summarize applies the section's summary rule to the collected answers.
func (s Section) Summarize(answers map[string]int) string {
	switch s.Summary.Kind {
	case "any":
		for _, v := range answers {
			if v >= s.Summary.Threshold {
				return s.Summary.High
			}
		}
		return s.Summary.Low
	default: // total
		sum := 0
		for _, v := range answers {
			sum += v
		}
		if sum >= s.Summary.Threshold {
			return s.Summary.High
		}
		return s.Summary.Low
	}
}

// Question returns the section question with the given id.
func (s Section) Question(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Axis is a named emotional/physical dimension with display metadata.
type Axis struct {
	ID            string   `yaml:"id"`
	Icon          string   `yaml:"icon"`
	Label         string   `yaml:"label"`
	Desc          string   `yaml:"desc"`
	Exercises     []string `yaml:"exercises"`
	LinkedTo      []string `yaml:"linked_to,omitempty"`
	LinkExplain   string   `yaml:"link_explain,omitempty"`
	StartQuestion string   `yaml:"start_question"`
	FollowUp      []string `yaml:"follow_up,omitempty"`
	Tips          []string `yaml:"tips,omitempty"`
}

// Exercise is one guided exercise of the library.
type Exercise struct {
	ID       string   `yaml:"id"`
	Icon     string   `yaml:"icon"`
	Title    string   `yaml:"title"`
	Duration string   `yaml:"duration"`
	Desc     string   `yaml:"desc"`
	Steps    []string `yaml:"steps"`
}

// StepType distinguishes the onboarding step shapes.
type StepType string

const (
	StepMessage StepType = "message"
	StepInput   StepType = "input"
	StepDate    StepType = "date"
	StepChoice  StepType = "choice"
	StepDone    StepType = "done"
)

// ChoiceOption is one option of a choice-type onboarding step.
type ChoiceOption struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
}

// OnboardingStep is one entry of the scripted onboarding flow.
type OnboardingStep struct {
	ID          string         `yaml:"id"`
	Type        StepType       `yaml:"type"`
	Text        string         `yaml:"text,omitempty"`
	Placeholder string         `yaml:"placeholder,omitempty"`
	Field       string         `yaml:"field,omitempty"`
	Options     []ChoiceOption `yaml:"options,omitempty"`
}

// Catalog is the full static data set, loaded once at startup.
type Catalog struct {
	Axes       []Axis
	Sections   []Section
	Onboarding []OnboardingStep
	Exercises  []Exercise

	axisIndex     map[string]int
	sectionIndex  map[string]int
	questionIndex map[string]string // question id -> section id
	exerciseIndex map[string]int
}

// Load parses and validates the embedded catalog files.
func Load() (*Catalog, error) {
	c := &Catalog{}
	if err := readYAML("data/axes.yaml", &c.Axes); err != nil {
		return nil, err
	}
	if err := readYAML("data/questions.yaml", &c.Sections); err != nil {
		return nil, err
	}
	if err := readYAML("data/onboarding.yaml", &c.Onboarding); err != nil {
		return nil, err
	}
	if err := readYAML("data/exercises.yaml", &c.Exercises); err != nil {
		return nil, err
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

func readYAML(name string, out any) error {
	b, err := dataFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read catalog %s: %w", name, err)
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse catalog %s: %w", name, err)
	}
	return nil
}

func (c *Catalog) index() error {
	c.axisIndex = map[string]int{}
	for i, a := range c.Axes {
		if _, dup := c.axisIndex[a.ID]; dup {
			return fmt.Errorf("duplicate axis %q", a.ID)
		}
		c.axisIndex[a.ID] = i
	}
	c.exerciseIndex = map[string]int{}
	for i, e := range c.Exercises {
		if _, dup := c.exerciseIndex[e.ID]; dup {
			return fmt.Errorf("duplicate exercise %q", e.ID)
		}
		c.exerciseIndex[e.ID] = i
	}
	c.sectionIndex = map[string]int{}
	c.questionIndex = map[string]string{}
	for i, s := range c.Sections {
		if _, dup := c.sectionIndex[s.ID]; dup {
			return fmt.Errorf("duplicate section %q", s.ID)
		}
		c.sectionIndex[s.ID] = i
		for _, q := range s.Questions {
			if _, dup := c.questionIndex[q.ID]; dup {
				return fmt.Errorf("duplicate question %q", q.ID)
			}
			c.questionIndex[q.ID] = s.ID
			if q.Axis != "" {
				if _, ok := c.axisIndex[q.Axis]; !ok {
					return fmt.Errorf("question %q tags unknown axis %q", q.ID, q.Axis)
				}
			}
			if len(q.Options) == 0 {
				return fmt.Errorf("question %q has no options", q.ID)
			}
		}
	}
	for _, a := range c.Axes {
		for _, ex := range a.Exercises {
			if _, ok := c.exerciseIndex[ex]; !ok {
				return fmt.Errorf("axis %q references unknown exercise %q", a.ID, ex)
			}
		}
		for _, link := range a.LinkedTo {
			if _, ok := c.axisIndex[link]; !ok {
				return fmt.Errorf("axis %q links unknown axis %q", a.ID, link)
			}
		}
	}
	if _, ok := c.exerciseIndex[DefaultExerciseID]; !ok {
		return fmt.Errorf("default exercise %q missing", DefaultExerciseID)
	}
	return nil
}

// Axis returns the axis with the given id.
func (c *Catalog) Axis(id string) (Axis, bool) {
	i, ok := c.axisIndex[id]
	if !ok {
		return Axis{}, false
	}
	return c.Axes[i], true
}

// AxisRank returns the declaration index of an axis, used as the stable
// tie-break when ranking scores.
func (c *Catalog) AxisRank(id string) int {
	if i, ok := c.axisIndex[id]; ok {
		return i
	}
	return len(c.Axes)
}

// Section returns the section with the given id.
func (c *Catalog) Section(id string) (Section, bool) {
	i, ok := c.sectionIndex[id]
	if !ok {
		return Section{}, false
	}
	return c.Sections[i], true
}

// SectionOf returns the section containing the given question id.
func (c *Catalog) SectionOf(questionID string) (Section, bool) {
	sid, ok := c.questionIndex[questionID]
	if !ok {
		return Section{}, false
	}
	return c.Section(sid)
}

// Exercise returns the exercise with the given id.
func (c *Catalog) Exercise(id string) (Exercise, bool) {
	i, ok := c.exerciseIndex[id]
	if !ok {
		return Exercise{}, false
	}
	return c.Exercises[i], true
}

// NextSection returns the first catalog section not present in completed.
func (c *Catalog) NextSection(completed []string) (Section, bool) {
	done := map[string]bool{}
	for _, id := range completed {
		done[id] = true
	}
	for _, s := range c.Sections {
		if !done[s.ID] {
			return s, true
		}
	}
	return Section{}, false
}
