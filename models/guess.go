package models

import (
	"time"

	"gorm.io/datatypes"
)

// Guess is a single user's scored attempt at a round's prompt.
// (round_id, user_id) is unique: one guess per user per round.
type Guess struct {
	ID        string `json:"id" gorm:"primaryKey"`
	RoundID   string `json:"round_id" gorm:"not null;uniqueIndex:idx_guesses_round_user"`
	UserID    string `json:"user_id" gorm:"not null;uniqueIndex:idx_guesses_round_user;index"`
	GuessText string `json:"guess_text" gorm:"type:text;not null"`

	Score          *int                                `json:"score"` // 0–100
	Similarity     float64                             `json:"similarity"`
	GuessEmbedding datatypes.JSONSlice[float64]        `json:"-"`
	ElementScores  datatypes.JSONType[ElementBreakdown] `json:"element_scores"`

	CreatedAt time.Time `json:"submitted_at" gorm:"autoCreateTime"`
}

// ElementBreakdown is word-level feedback shown next to the score. It never
// changes the score itself.
type ElementBreakdown struct {
	MatchedWords   []string       `json:"matched_words"`
	PartialMatches []PartialMatch `json:"partial_matches"`
	ElementScore   int            `json:"element_score"`
	OverallScore   int            `json:"overall_score"`
}

type PartialMatch struct {
	Word        string  `json:"word"`
	MatchedWith string  `json:"matched_with"`
	Similarity  float64 `json:"similarity"`
}
