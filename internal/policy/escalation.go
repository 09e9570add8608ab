package policy

import (
	"fmt"
	"os"
	"strings"

	"github.com/attaboy/warden/internal/domain"
	"gopkg.in/yaml.v3"
)

// Category groups punishment reasons for escalation counting.
type Category struct {
	Name     string   `yaml:"name" validate:"required"`
	Triggers []string `yaml:"triggers" validate:"required,min=1,dive,required"`
}

// EscalationRule fires when the active warning count in a category reaches Warnings exactly.
type EscalationRule struct {
	Warnings int    `yaml:"warnings" validate:"min=1"`
	Type     string `yaml:"type" validate:"oneof=ban tempban mute tempmute kick"`
	Duration string `yaml:"duration"`
	Reason   string `yaml:"reason" validate:"required,max=512"`
}

// Rules is the escalation table.
type Rules struct {
	DefaultCategory string           `yaml:"default_category" validate:"required"`
	Categories      []Category       `yaml:"categories" validate:"dive"`
	Escalations     []EscalationRule `yaml:"rules" validate:"dive"`

	seconds map[int]int64
}

// Escalation is a resolved rule ready to schedule.
type Escalation struct {
	Warnings        int
	Type            domain.PunishmentType
	DurationSeconds int64
	Reason          string
}

// DefaultRules returns the built-in table: three warnings in a category earn a
// day ban, five earn a week.
func DefaultRules() *Rules {
	r := &Rules{
		DefaultCategory: "general",
		Categories: []Category{
			{Name: "cheating", Triggers: []string{"hack", "cheat", "fly", "killaura", "xray", "exploit"}},
			{Name: "chat", Triggers: []string{"spam", "swear", "toxic", "advert", "caps"}},
			{Name: "griefing", Triggers: []string{"grief", "steal", "destroy"}},
		},
		Escalations: []EscalationRule{
			{Warnings: 3, Type: "tempban", Duration: "1d", Reason: "Automatic: 3 warnings"},
			{Warnings: 5, Type: "tempban", Duration: "7d", Reason: "Automatic: 5 warnings"},
		},
	}
	if err := r.Validate(); err != nil {
		panic(err)
	}
	return r
}

// LoadRules reads a YAML table from path. An empty path yields DefaultRules.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read escalation rules: %w", err)
	}
	return ParseRules(raw)
}

// ParseRules decodes and validates a YAML table.
func ParseRules(raw []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parse escalation rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks struct tags, rejects duplicate thresholds and parses
// durations. Temporary types need a positive duration; the rest are permanent.
func (r *Rules) Validate() error {
	if err := domain.ValidateStruct(r); err != nil {
		return err
	}
	r.seconds = make(map[int]int64, len(r.Escalations))
	for _, rule := range r.Escalations {
		if _, dup := r.seconds[rule.Warnings]; dup {
			return domain.ErrValidation(fmt.Sprintf("duplicate escalation threshold %d", rule.Warnings))
		}
		t, _ := domain.ParsePunishmentType(rule.Type)
		secs := domain.Permanent
		if t.IsTemporary() {
			s, err := domain.ParseDuration(rule.Duration)
			if err != nil || s == domain.Permanent {
				return domain.ErrValidation(fmt.Sprintf("rule for %d warnings: %s needs a positive duration", rule.Warnings, rule.Type))
			}
			secs = s
		}
		r.seconds[rule.Warnings] = secs
	}
	return nil
}

// ResolveCategory lower-cases reason and returns the first category with a
// matching trigger substring, or the default category.
func (r *Rules) ResolveCategory(reason string) string {
	lower := strings.ToLower(reason)
	for _, c := range r.Categories {
		for _, trig := range c.Triggers {
			if strings.Contains(lower, strings.ToLower(trig)) {
				return c.Name
			}
		}
	}
	return r.DefaultCategory
}

// RuleFor returns the escalation whose threshold equals count exactly.
func (r *Rules) RuleFor(count int) (Escalation, bool) {
	for _, rule := range r.Escalations {
		if rule.Warnings != count {
			continue
		}
		t, _ := domain.ParsePunishmentType(rule.Type)
		return Escalation{
			Warnings:        rule.Warnings,
			Type:            t,
			DurationSeconds: r.seconds[rule.Warnings],
			Reason:          rule.Reason,
		}, true
	}
	return Escalation{}, false
}
