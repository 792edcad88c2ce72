package models

import "time"

const (
	CategorySubject    = "subject"
	CategoryDescriptor = "descriptor"
	CategoryAction     = "action"
	CategorySetting    = "setting"
	CategoryStyle      = "style"
)

// WordBankEntry is a category-tagged seed word.
type WordBankEntry struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	Word       string     `json:"word" gorm:"not null;uniqueIndex"`
	Category   string     `json:"category" gorm:"not null;index"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" gorm:"index"` // set only when picked for a round
	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

func (WordBankEntry) TableName() string {
	return "word_bank"
}

// RoundWord links a round to the words that seeded its prompt.
type RoundWord struct {
	RoundID  string `json:"round_id" gorm:"primaryKey"`
	WordID   string `json:"word_id" gorm:"primaryKey;index"`
	Position int    `json:"position"`
}
