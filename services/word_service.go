package services

import (
	"context"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"prompt-guess-game/logger"
	"prompt-guess-game/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed wordbank.csv
var defaultWordBank string

// categoryOrder drives round-robin picking so prompts get a subject before
// they get a third descriptor.
var categoryOrder = []string{
	models.CategorySubject,
	models.CategoryDescriptor,
	models.CategoryAction,
	models.CategorySetting,
	models.CategoryStyle,
}

const (
	defaultSelectionAttempts = 5
	poolMultiplier           = 3
)

type WordConfig struct {
	DifficultyWordCounts map[string]int
	DefaultDifficulty    string
	// Lookback is how many recent rounds a new combination is compared to; 0 disables the check.
	Lookback int
	// Threshold is the overlap fraction at or above which a combination counts as repeated.
	Threshold         float64
	SelectionAttempts int
}

type WordService struct {
	DB      *gorm.DB
	cfg     WordConfig
	shuffle func(n int, swap func(i, j int))
	log     zerolog.Logger
}

func NewWordService(db *gorm.DB, cfg WordConfig) *WordService {
	if cfg.SelectionAttempts <= 0 {
		cfg.SelectionAttempts = defaultSelectionAttempts
	}
	return &WordService{
		DB:      db,
		cfg:     cfg,
		shuffle: rand.Shuffle,
		log:     logger.Component("words"),
	}
}

// ResolveDifficulty maps "" to the default difficulty and returns the
// configured word count.
func (s *WordService) ResolveDifficulty(difficulty string) (string, int, error) {
	if strings.TrimSpace(difficulty) == "" {
		difficulty = s.cfg.DefaultDifficulty
	}
	n, ok := s.cfg.DifficultyWordCounts[difficulty]
	if !ok {
		return "", 0, ErrUnknownDifficulty.With("unknown difficulty %q", difficulty)
	}
	return difficulty, n, nil
}

// GetWordsForDifficulty picks a word set for a new round. Recently used words
// are avoided individually; combinations too close to a recent round are
// re-drawn a bounded number of times, after which the last draw is accepted.
func (s *WordService) GetWordsForDifficulty(ctx context.Context, difficulty string) ([]models.WordBankEntry, error) {
	difficulty, count, err := s.ResolveDifficulty(difficulty)
	if err != nil {
		return nil, err
	}

	var words []models.WordBankEntry
	for attempt := 1; attempt <= s.cfg.SelectionAttempts; attempt++ {
		words, err = s.selectWords(ctx, count)
		if err != nil {
			return nil, err
		}
		if s.ValidateCombination(ctx, wordIDs(words)) {
			return words, nil
		}
		s.log.Debug().Int("attempt", attempt).Str("difficulty", difficulty).Msg("word combination too close to a recent round, redrawing")
	}

	s.log.Warn().
		Int("attempts", s.cfg.SelectionAttempts).
		Str("difficulty", difficulty).
		Msg("accepting repeated word combination after exhausting attempts")
	return words, nil
}

// selectWords draws the least recently used words of each category into a
// pool and then picks round-robin across categories.
func (s *WordService) selectWords(ctx context.Context, count int) ([]models.WordBankEntry, error) {
	var categories []string
	if err := s.DB.WithContext(ctx).
		Model(&models.WordBankEntry{}).
		Distinct("category").
		Order("category").
		Pluck("category", &categories).Error; err != nil {
		return nil, fmt.Errorf("failed to load word categories: %w", err)
	}

	var pool []models.WordBankEntry
	for _, category := range categories {
		var candidates []models.WordBankEntry
		err := s.DB.WithContext(ctx).
			Where("category = ?", category).
			Order("CASE WHEN last_used_at IS NULL THEN 0 ELSE 1 END, last_used_at ASC").
			Limit(count * poolMultiplier).
			Find(&candidates).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load %s words: %w", category, err)
		}
		pool = append(pool, candidates...)
	}
	if len(pool) == 0 {
		return nil, ErrNoWordsAvailable.With("word bank is empty")
	}

	s.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pickBalanced(pool, count), nil
}

// pickBalanced takes up to count words, cycling through categories in
// categoryOrder and then any other categories present.
func pickBalanced(pool []models.WordBankEntry, count int) []models.WordBankEntry {
	buckets := map[string][]models.WordBankEntry{}
	order := append([]string(nil), categoryOrder...)
	known := map[string]bool{}
	for _, c := range categoryOrder {
		known[c] = true
	}
	for _, w := range pool {
		if !known[w.Category] {
			known[w.Category] = true
			order = append(order, w.Category)
		}
		buckets[w.Category] = append(buckets[w.Category], w)
	}

	picked := make([]models.WordBankEntry, 0, count)
	for len(picked) < count {
		progressed := false
		for _, c := range order {
			if len(picked) == count {
				break
			}
			if b := buckets[c]; len(b) > 0 {
				picked = append(picked, b[0])
				buckets[c] = b[1:]
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return picked
}

// ValidateCombination reports whether the proposed words overlap every one of
// the last Lookback rounds by less than Threshold. Lookup failures allow the
// combination; the check is advisory.
func (s *WordService) ValidateCombination(ctx context.Context, ids []string) bool {
	if s.cfg.Lookback <= 0 || len(ids) == 0 {
		return true
	}

	var recent []string
	err := s.DB.WithContext(ctx).
		Model(&models.Round{}).
		Order("created_at DESC").
		Limit(s.cfg.Lookback).
		Pluck("id", &recent).Error
	if err != nil {
		s.log.Warn().Err(err).Msg("could not load recent rounds for repetition check")
		return true
	}
	if len(recent) == 0 {
		return true
	}

	var links []models.RoundWord
	if err := s.DB.WithContext(ctx).Where("round_id IN ?", recent).Find(&links).Error; err != nil {
		s.log.Warn().Err(err).Msg("could not load recent round words for repetition check")
		return true
	}

	proposed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		proposed[id] = struct{}{}
	}
	shared := map[string]int{}
	for _, l := range links {
		if _, ok := proposed[l.WordID]; ok {
			shared[l.RoundID]++
		}
	}
	for roundID, n := range shared {
		if float64(n)/float64(len(proposed)) >= s.cfg.Threshold {
			s.log.Debug().Str("round_id", roundID).Int("shared", n).Msg("combination overlaps recent round")
			return false
		}
	}
	return true
}

// AttachToRound links words to a round and stamps them as used. It must run
// inside the transaction that creates the round.
func (s *WordService) AttachToRound(tx *gorm.DB, roundID string, words []models.WordBankEntry, at time.Time) error {
	if len(words) == 0 {
		return nil
	}
	links := make([]models.RoundWord, len(words))
	for i, w := range words {
		links[i] = models.RoundWord{RoundID: roundID, WordID: w.ID, Position: i}
	}
	if err := tx.Create(&links).Error; err != nil {
		return fmt.Errorf("failed to link words to round: %w", err)
	}
	if err := tx.Model(&models.WordBankEntry{}).Where("id IN ?", wordIDs(words)).Update("last_used_at", at).Error; err != nil {
		return fmt.Errorf("failed to mark words used: %w", err)
	}
	return nil
}

// WordsForRound returns the words that seeded a round, in prompt order.
func (s *WordService) WordsForRound(ctx context.Context, roundID string) ([]models.WordBankEntry, error) {
	var words []models.WordBankEntry
	err := s.DB.WithContext(ctx).
		Joins("JOIN round_words ON round_words.word_id = word_bank.id").
		Where("round_words.round_id = ?", roundID).
		Order("round_words.position ASC").
		Find(&words).Error
	return words, err
}

// SeedDefaults loads the embedded word list when the bank is empty and
// returns how many words were inserted.
func (s *WordService) SeedDefaults(ctx context.Context) (int, error) {
	var existing int64
	if err := s.DB.WithContext(ctx).Model(&models.WordBankEntry{}).Count(&existing).Error; err != nil {
		return 0, fmt.Errorf("failed to count word bank: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	entries, err := parseWordBank(strings.NewReader(defaultWordBank))
	if err != nil {
		return 0, err
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "word"}}, DoNothing: true}).
		CreateInBatches(entries, 100)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to seed word bank: %w", res.Error)
	}

	s.log.Info().Int64("count", res.RowsAffected).Msg("🌱 seeded word bank")
	return int(res.RowsAffected), nil
}

func parseWordBank(r io.Reader) ([]models.WordBankEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid word bank: %w", err)
	}

	var entries []models.WordBankEntry
	for i, rec := range records {
		if i == 0 && rec[0] == "word" {
			continue
		}
		word := strings.ToLower(strings.TrimSpace(rec[0]))
		category := strings.ToLower(strings.TrimSpace(rec[1]))
		if word == "" || category == "" {
			continue
		}
		entries = append(entries, models.WordBankEntry{ID: uuid.NewString(), Word: word, Category: category})
	}
	return entries, nil
}

func wordIDs(words []models.WordBankEntry) []string {
	ids := make([]string, len(words))
	for i, w := range words {
		ids[i] = w.ID
	}
	return ids
}
