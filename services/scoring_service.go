package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"prompt-guess-game/logger"
	"prompt-guess-game/models"
	"prompt-guess-game/notify"
	"prompt-guess-game/providers/embedding"
	"prompt-guess-game/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// Similarities at or below scoreFloor score 0.
	scoreFloor    = 0.3
	scoreExponent = 0.8

	defaultPartialThreshold = 0.6
	defaultMaxGuessLength   = 200
)

type ScoringConfig struct {
	MaxGuessLength   int
	PartialThreshold float64
}

type ScoringService struct {
	DB       *gorm.DB
	Rounds   *RoundService
	Embedder embedding.Provider
	Events   notify.Emitter

	cfg ScoringConfig
	log zerolog.Logger
}

func NewScoringService(db *gorm.DB, rounds *RoundService, embedder embedding.Provider, events notify.Emitter, cfg ScoringConfig) *ScoringService {
	if cfg.MaxGuessLength <= 0 {
		cfg.MaxGuessLength = defaultMaxGuessLength
	}
	if cfg.PartialThreshold <= 0 {
		cfg.PartialThreshold = defaultPartialThreshold
	}
	if events == nil {
		events = notify.Discard{}
	}
	return &ScoringService{
		DB:       db,
		Rounds:   rounds,
		Embedder: embedder,
		Events:   events,
		cfg:      cfg,
		log:      logger.Component("scoring"),
	}
}

// NormalizeScore maps a cosine similarity onto 0..100. Similarities at or
// below 0.3 score 0 and the curve lifts mid-range guesses.
func NormalizeScore(similarity float64) int {
	linear := (similarity - scoreFloor) / (1 - scoreFloor)
	linear = math.Max(0, math.Min(1, linear))
	return int(math.Round(math.Pow(linear, scoreExponent) * 100))
}

type ScoreResult struct {
	Score          int                     `json:"score"`
	Similarity     float64                 `json:"similarity"`
	Breakdown      models.ElementBreakdown `json:"element_scores"`
	GuessEmbedding []float64               `json:"-"`
}

// ScoreGuess scores text against a round's prompt without persisting
// anything. The round status is not checked.
func (s *ScoringService) ScoreGuess(ctx context.Context, roundID, guessText string) (*ScoreResult, error) {
	round, err := s.Rounds.GetRoundByID(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return s.score(ctx, round, guessText)
}

func (s *ScoringService) score(ctx context.Context, round *models.Round, guessText string) (*ScoreResult, error) {
	if err := s.Rounds.ensurePromptEmbedding(ctx, round); err != nil {
		return nil, err
	}

	emb, err := s.Embedder.Embed(ctx, guessText)
	if err != nil {
		return nil, ErrProviderFailure.With("guess embedding via %s failed", s.Embedder.Name()).Wrap(err)
	}

	similarity, err := embedding.CosineSimilarity(round.PromptEmbedding, emb.Vector)
	if err != nil {
		return nil, ErrInvalidVector.Wrap(err)
	}
	score := NormalizeScore(similarity)

	breakdown, err := s.ComputeElementBreakdown(ctx, round.Prompt, guessText, score)
	if err != nil {
		// Feedback only; the score stands.
		s.log.Warn().Err(err).Str("round_id", round.ID).Msg("element breakdown degraded to exact matches")
	}

	return &ScoreResult{
		Score:          score,
		Similarity:     similarity,
		Breakdown:      breakdown,
		GuessEmbedding: emb.Vector,
	}, nil
}

type GuessResult struct {
	Guess        *models.Guess `json:"guess"`
	Rank         int64         `json:"rank"`
	TotalGuesses int64         `json:"total_guesses"`
}

// ScoreAndSaveGuess validates, scores and stores a user's single guess for an
// active round.
func (s *ScoringService) ScoreAndSaveGuess(ctx context.Context, roundID, userID, guessText string) (*GuessResult, error) {
	guessText = strings.TrimSpace(guessText)
	switch {
	case strings.TrimSpace(userID) == "":
		return nil, ErrInvalidGuess.With("user id is required")
	case strings.TrimSpace(roundID) == "":
		return nil, ErrInvalidGuess.With("round id is required")
	case guessText == "":
		return nil, ErrInvalidGuess.With("guess text is required")
	case utf8.RuneCountInString(guessText) > s.cfg.MaxGuessLength:
		return nil, ErrInvalidGuess.With("guess must be at most %d characters", s.cfg.MaxGuessLength)
	}

	round, err := s.Rounds.GetRoundByID(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.Status != models.RoundStatusActive {
		return nil, ErrRoundNotActive.With("round %s is %s", roundID, round.Status)
	}

	var existing int64
	if err := s.DB.WithContext(ctx).Model(&models.Guess{}).
		Where("round_id = ? AND user_id = ?", roundID, userID).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing guess: %w", err)
	}
	if existing > 0 {
		return nil, ErrDuplicateGuess.With("user %s already guessed in round %s", userID, roundID)
	}

	result, err := s.score(ctx, round, guessText)
	if err != nil {
		return nil, err
	}

	score := result.Score
	guess := &models.Guess{
		ID:             uuid.NewString(),
		RoundID:        roundID,
		UserID:         userID,
		GuessText:      guessText,
		Score:          &score,
		Similarity:     result.Similarity,
		GuessEmbedding: result.GuessEmbedding,
		ElementScores:  datatypes.NewJSONType(result.Breakdown),
	}
	if err := s.DB.WithContext(ctx).Create(guess).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicateGuess.With("user %s already guessed in round %s", userID, roundID)
		}
		return nil, fmt.Errorf("failed to save guess: %w", err)
	}

	out := &GuessResult{Guess: guess}
	db := s.DB.WithContext(ctx).Model(&models.Guess{}).Where("round_id = ?", roundID)
	if err := db.Session(&gorm.Session{}).Where("score > ?", score).Count(&out.Rank).Error; err != nil {
		return nil, fmt.Errorf("failed to rank guess: %w", err)
	}
	out.Rank++
	if err := db.Session(&gorm.Session{}).Count(&out.TotalGuesses).Error; err != nil {
		return nil, fmt.Errorf("failed to count guesses: %w", err)
	}

	s.log.Info().
		Str("round_id", roundID).
		Str("user_id", userID).
		Int("score", score).
		Float64("similarity", result.Similarity).
		Msg("guess scored")
	s.Events.Emit(notify.Event{
		Type:    notify.EventGuessScored,
		RoundID: roundID,
		UserID:  userID,
		Payload: map[string]any{
			"score":         score,
			"rank":          out.Rank,
			"total_guesses": out.TotalGuesses,
		},
	})
	return out, nil
}

// ComputeElementBreakdown compares prompt and guess word by word. Exact
// matches are found first; leftover prompt words are then paired greedily
// with the most similar unclaimed guess word. On embedding failure the
// returned breakdown still carries the exact matches.
func (s *ScoringService) ComputeElementBreakdown(ctx context.Context, promptText, guessText string, overallScore int) (models.ElementBreakdown, error) {
	out := models.ElementBreakdown{
		MatchedWords:   []string{},
		PartialMatches: []models.PartialMatch{},
		OverallScore:   overallScore,
	}

	promptTokens := uniqueTokens(utils.ContentTokens(promptText))
	if len(promptTokens) == 0 {
		return out, nil
	}
	guessTokens := uniqueTokens(utils.ContentTokens(guessText))

	remaining := make(map[string]bool, len(guessTokens))
	for _, tok := range guessTokens {
		remaining[tok] = true
	}
	var unmatched []string
	for _, tok := range promptTokens {
		if remaining[tok] {
			out.MatchedWords = append(out.MatchedWords, tok)
			delete(remaining, tok)
		} else {
			unmatched = append(unmatched, tok)
		}
	}
	var leftover []string
	for _, tok := range guessTokens {
		if remaining[tok] {
			leftover = append(leftover, tok)
		}
	}

	var err error
	if len(unmatched) > 0 && len(leftover) > 0 {
		out.PartialMatches, err = s.partialMatches(ctx, unmatched, leftover)
		if err != nil {
			out.PartialMatches = []models.PartialMatch{}
		}
	}

	ratio := (float64(len(out.MatchedWords)) + 0.5*float64(len(out.PartialMatches))) / float64(len(promptTokens))
	out.ElementScore = int(math.Round(math.Min(1, ratio) * 100))
	return out, err
}

func (s *ScoringService) partialMatches(ctx context.Context, unmatched, leftover []string) ([]models.PartialMatch, error) {
	texts := append(append([]string(nil), unmatched...), leftover...)
	vectors, err := embedding.EmbedAll(ctx, s.Embedder, texts)
	if err != nil {
		return nil, err
	}
	promptVecs, guessVecs := vectors[:len(unmatched)], vectors[len(unmatched):]

	matches := []models.PartialMatch{}
	claimed := make([]bool, len(leftover))
	for i, word := range unmatched {
		best, bestSim := -1, math.Inf(-1)
		for j := range leftover {
			if claimed[j] {
				continue
			}
			sim, err := embedding.CosineSimilarity(promptVecs[i], guessVecs[j])
			if err != nil {
				return nil, err
			}
			if sim > bestSim {
				best, bestSim = j, sim
			}
		}
		if best >= 0 && bestSim >= s.cfg.PartialThreshold {
			claimed[best] = true
			matches = append(matches, models.PartialMatch{
				Word:        word,
				MatchedWith: leftover[best],
				Similarity:  math.Round(bestSim*100) / 100,
			})
		}
	}
	return matches, nil
}

type LeaderboardEntry struct {
	Rank      int64  `json:"rank"`
	UserID    string `json:"user_id"`
	Score     int    `json:"score"`
	GuessText string `json:"guess_text,omitempty"`
}

type Leaderboard struct {
	RoundID      string             `json:"round_id"`
	Status       models.RoundStatus `json:"status"`
	TotalGuesses int64              `json:"total_guesses"`
	Entries      []LeaderboardEntry `json:"entries"`
}

// Leaderboard ranks a round's guesses by score. Equal scores share a rank
// and are listed earliest first.
// Guess texts are only revealed once the round is completed.
func (s *ScoringService) Leaderboard(ctx context.Context, roundID string, limit int) (*Leaderboard, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	round, err := s.Rounds.GetRoundByID(ctx, roundID)
	if err != nil {
		return nil, err
	}

	board := &Leaderboard{RoundID: round.ID, Status: round.Status, Entries: []LeaderboardEntry{}}
	db := s.DB.WithContext(ctx).Model(&models.Guess{}).Where("round_id = ?", roundID)
	if err := db.Session(&gorm.Session{}).Count(&board.TotalGuesses).Error; err != nil {
		return nil, fmt.Errorf("failed to count guesses: %w", err)
	}

	var guesses []models.Guess
	if err := db.Session(&gorm.Session{}).
		Order("score DESC").
		Order("created_at ASC").
		Limit(limit).
		Find(&guesses).Error; err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	for i, g := range guesses {
		entry := LeaderboardEntry{Rank: int64(i + 1), UserID: g.UserID}
		if g.Score != nil {
			entry.Score = *g.Score
		}
		// Tied scores share a rank, matching ScoreAndSaveGuess.
		if i > 0 && board.Entries[i-1].Score == entry.Score {
			entry.Rank = board.Entries[i-1].Rank
		}
		if round.Status == models.RoundStatusCompleted {
			entry.GuessText = g.GuessText
		}
		board.Entries = append(board.Entries, entry)
	}
	return board, nil
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
