// models/round.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

type RoundStatus string

const (
	RoundStatusPending   RoundStatus = "pending"
	RoundStatusActive    RoundStatus = "active"
	RoundStatusCompleted RoundStatus = "completed"
)

// PromptSource records which path produced the prompt.
type PromptSource string

const (
	PromptSourceGenerated PromptSource = "generated"
	PromptSourceTemplated PromptSource = "templated"
)

// Round is one instance of the guessing game.
type Round struct {
	ID       string `json:"id" gorm:"primaryKey"`
	Prompt   string `json:"-" gorm:"type:text;not null"` // secret until completed
	ImageURL string `json:"image_url" gorm:"type:text;not null"`

	// 🎛️ Lifecycle: pending → active → completed. The partial unique index
	// allows a single active row.
	Status RoundStatus `json:"status" gorm:"not null;default:'pending';index:idx_rounds_single_active,unique,where:status = 'active'"`

	PromptEmbedding datatypes.JSONSlice[float64] `json:"-"`
	PromptSource    PromptSource                 `json:"prompt_source" gorm:"not null"`
	Difficulty      string                       `json:"difficulty" gorm:"not null"`
	WordCount       int                          `json:"word_count" gorm:"not null"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty" gorm:"index"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// PublicRound is the client-facing shape; Prompt is only filled once completed.
type PublicRound struct {
	ID           string       `json:"id"`
	ImageURL     string       `json:"image_url"`
	Status       RoundStatus  `json:"status"`
	Difficulty   string       `json:"difficulty"`
	WordCount    int          `json:"word_count"`
	PromptSource PromptSource `json:"prompt_source"`
	Prompt       string       `json:"prompt,omitempty"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	EndsAt       *time.Time   `json:"ends_at,omitempty"`
	EndedAt      *time.Time   `json:"ended_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Public returns the client-facing view. duration is used to report when an
// active round is due to end.
func (r *Round) Public(duration time.Duration) PublicRound {
	pub := PublicRound{
		ID:           r.ID,
		ImageURL:     r.ImageURL,
		Status:       r.Status,
		Difficulty:   r.Difficulty,
		WordCount:    r.WordCount,
		PromptSource: r.PromptSource,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
		CreatedAt:    r.CreatedAt,
	}
	if r.Status == RoundStatusCompleted {
		pub.Prompt = r.Prompt
	}
	if r.Status == RoundStatusActive && r.StartedAt != nil && duration > 0 {
		ends := r.StartedAt.Add(duration)
		pub.EndsAt = &ends
	}
	return pub
}

// ExpiresAt is StartedAt + duration, or nil if the round never started.
func (r *Round) ExpiresAt(duration time.Duration) *time.Time {
	if r.StartedAt == nil {
		return nil
	}
	t := r.StartedAt.Add(duration)
	return &t
}
