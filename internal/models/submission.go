package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SafetyState is the tri-state moderation verdict for a submission's free text.
// Pending means the upstream safety check never completed; pending rows are
// excluded from every AI-facing aggregate, the same as unsafe ones.
type SafetyState int

const (
	SafetyPending SafetyState = iota
	SafetySafe
	SafetyUnsafe
)

func (s SafetyState) String() string {
	switch s {
	case SafetySafe:
		return "safe"
	case SafetyUnsafe:
		return "unsafe"
	default:
		return "pending"
	}
}

// Value maps the state onto a nullable boolean column (NULL = pending).
func (s SafetyState) Value() (driver.Value, error) {
	switch s {
	case SafetySafe:
		return true, nil
	case SafetyUnsafe:
		return false, nil
	default:
		return nil, nil
	}
}

func (s *SafetyState) Scan(src interface{}) error {
	if src == nil {
		*s = SafetyPending
		return nil
	}
	b, ok := src.(bool)
	if !ok {
		return fmt.Errorf("cannot scan %T into SafetyState", src)
	}
	if b {
		*s = SafetySafe
	} else {
		*s = SafetyUnsafe
	}
	return nil
}

// FixedAnswers holds the fixed-schema survey answers everyone provides.
type FixedAnswers struct {
	BiggestPressure string `json:"biggest_pressure" binding:"required,oneof=housing food energy transport childcare healthcare debt other"`
	ChangeDirection int    `json:"change_direction" binding:"required,min=1,max=5"`
	Sacrifice       string `json:"sacrifice" binding:"required,min=2,max=200"`
}

func (a FixedAnswers) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *FixedAnswers) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into FixedAnswers", src)
	}
	return json.Unmarshal(b, a)
}

// AdaptiveAnswer is one answered AI-generated follow-up question. Answer is a
// string for single_choice and short_text, a number for scale, or null when
// the respondent skipped the question.
type AdaptiveAnswer struct {
	Question  string      `json:"question" binding:"required,max=500"`
	InputType string      `json:"input_type" binding:"required,oneof=single_choice scale short_text"`
	Answer    interface{} `json:"answer"`
}

type AdaptiveAnswers []AdaptiveAnswer

func (a AdaptiveAnswers) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

func (a *AdaptiveAnswers) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into AdaptiveAnswers", src)
	}
	return json.Unmarshal(b, a)
}

// Submission represents a row in the 'submissions' table. ContentSafe is the
// only field mutated after insert, by the moderation gate or its background
// retry.
type Submission struct {
	ID           string          `db:"id" json:"id"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	Responses    FixedAnswers    `db:"responses" json:"responses"`
	AdaptiveData AdaptiveAnswers `db:"adaptive_data" json:"adaptive_data,omitempty"`
	ConsentGiven bool            `db:"consent_given" json:"consent_given"`
	ContentSafe  SafetyState     `db:"content_safe" json:"content_safe"`
}
