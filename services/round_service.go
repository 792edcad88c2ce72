package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prompt-guess-game/logger"
	"prompt-guess-game/models"
	"prompt-guess-game/notify"
	"prompt-guess-game/providers"
	"prompt-guess-game/providers/embedding"
	"prompt-guess-game/providers/imagegen"
	"prompt-guess-game/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultCreateAttempts = 3

type RoundConfig struct {
	RoundDuration  time.Duration
	CreateAttempts int
	ImageOptions   *imagegen.Options
}

// RoundService owns the round lifecycle: pending -> active -> completed.
type RoundService struct {
	DB       *gorm.DB
	Words    *WordService
	Prompts  *PromptService
	Images   imagegen.Provider
	Store    utils.ImageStore
	Embedder embedding.Provider
	Events   notify.Emitter

	cfg   RoundConfig
	clock clockwork.Clock
	log   zerolog.Logger
}

type RoundDeps struct {
	Words    *WordService
	Prompts  *PromptService
	Images   imagegen.Provider
	Store    utils.ImageStore
	Embedder embedding.Provider
	Events   notify.Emitter
	Clock    clockwork.Clock
}

func NewRoundService(db *gorm.DB, deps RoundDeps, cfg RoundConfig) *RoundService {
	if cfg.CreateAttempts <= 0 {
		cfg.CreateAttempts = defaultCreateAttempts
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Events == nil {
		deps.Events = notify.Discard{}
	}
	return &RoundService{
		DB:       db,
		Words:    deps.Words,
		Prompts:  deps.Prompts,
		Images:   deps.Images,
		Store:    deps.Store,
		Embedder: deps.Embedder,
		Events:   deps.Events,
		cfg:      cfg,
		clock:    deps.Clock,
		log:      logger.Component("rounds"),
	}
}

func (s *RoundService) RoundDuration() time.Duration { return s.cfg.RoundDuration }

func (s *RoundService) now() time.Time { return s.clock.Now().UTC() }

// CreateRound runs the full pipeline (words, prompt, image, embedding) and
// persists a pending round. Nothing is written unless every step succeeds.
func (s *RoundService) CreateRound(ctx context.Context, difficulty string) (*models.Round, error) {
	difficulty, _, err := s.Words.ResolveDifficulty(difficulty)
	if err != nil {
		return nil, err
	}

	words, err := s.Words.GetWordsForDifficulty(ctx, difficulty)
	if err != nil {
		return nil, err
	}

	prompt, source := s.Prompts.GeneratePromptFromWords(ctx, words)

	img, err := s.Images.Generate(ctx, prompt, s.cfg.ImageOptions)
	if err != nil {
		return nil, ErrProviderFailure.With("image generation via %s failed", s.Images.Name()).Wrap(err)
	}
	imageURL, err := s.persistImage(ctx, img, difficulty)
	if err != nil {
		return nil, err
	}

	emb, err := s.Embedder.Embed(ctx, prompt)
	if err != nil {
		return nil, ErrProviderFailure.With("prompt embedding via %s failed", s.Embedder.Name()).Wrap(err)
	}
	if len(emb.Vector) == 0 {
		return nil, ErrInvalidVector.With("%s returned an empty prompt embedding", s.Embedder.Name())
	}

	round := &models.Round{
		ID:              uuid.NewString(),
		Prompt:          prompt,
		ImageURL:        imageURL,
		Status:          models.RoundStatusPending,
		PromptEmbedding: emb.Vector,
		PromptSource:    source,
		Difficulty:      difficulty,
		WordCount:       len(words),
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(round).Error; err != nil {
			return fmt.Errorf("failed to save round: %w", err)
		}
		return s.Words.AttachToRound(tx, round.ID, words, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("round_id", round.ID).
		Str("difficulty", difficulty).
		Str("prompt_source", string(source)).
		Int("words", len(words)).
		Msg("round created")
	return round, nil
}

// persistImage returns a durable URL for a generated image. Bytes and
// short-lived URLs are copied into the image store; stable URLs are kept.
func (s *RoundService) persistImage(ctx context.Context, img *imagegen.Result, difficulty string) (string, error) {
	if img == nil {
		return "", ErrProviderFailure.With("%s returned no image", s.Images.Name())
	}

	data, contentType := img.ImageBytes, img.ContentType
	if len(data) == 0 {
		if img.ImageURL == "" {
			return "", ErrProviderFailure.With("%s returned neither image bytes nor a URL", s.Images.Name())
		}
		if !img.Ephemeral {
			return img.ImageURL, nil
		}
		var err error
		data, contentType, err = utils.DownloadBytes(ctx, img.ImageURL)
		if err != nil {
			return "", ErrProviderFailure.With("failed to fetch generated image").Wrap(err)
		}
	}

	if s.Store == nil {
		return "", fmt.Errorf("no image store configured for %s output", s.Images.Name())
	}
	key := utils.ImageKey(s.now(), difficulty, s.Images.Name(), contentType)
	url, err := s.Store.Save(ctx, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to store round image: %w", err)
	}
	return url, nil
}

// ActivateRound moves a pending round to active and stamps its start time.
func (s *RoundService) ActivateRound(ctx context.Context, id string) (*models.Round, error) {
	var round *models.Round
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := transition(tx, id, models.RoundStatusPending, models.RoundStatusActive, s.now()); err != nil {
			return err
		}
		var err error
		round, err = findRound(tx, id)
		return err
	})
	if isDuplicateKey(err) {
		return nil, ErrInvalidTransition.With("cannot activate round %s: another round is already active", id)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("round_id", id).Msg("round activated")
	return round, nil
}

// CompleteRound moves an active round to completed and stamps its end time.
func (s *RoundService) CompleteRound(ctx context.Context, id string) (*models.Round, error) {
	var round *models.Round
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := transition(tx, id, models.RoundStatusActive, models.RoundStatusCompleted, s.now()); err != nil {
			return err
		}
		var err error
		round, err = findRound(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("round_id", id).Msg("round completed")
	return round, nil
}

// CreateAndActivateRound is the rotation step. The new round is built first,
// with retries; only then are the current active rounds completed and the new
// one activated, in a single transaction. If creation fails the active round
// is left untouched.
func (s *RoundService) CreateAndActivateRound(ctx context.Context, difficulty string) (*models.Round, error) {
	var (
		round   *models.Round
		lastErr error
	)
	for attempt := 1; attempt <= s.cfg.CreateAttempts; attempt++ {
		round, lastErr = s.CreateRound(ctx, difficulty)
		if lastErr == nil {
			break
		}
		s.log.Warn().Err(lastErr).Int("attempt", attempt).Msg("round creation failed")
		if kind := KindOf(lastErr); kind == KindValidation || kind == KindNotFound {
			return nil, lastErr
		}
		// A rejected credential fails the same way on every attempt.
		if providers.IsKind(lastErr, providers.KindAuth) {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		return nil, ErrRoundCreation.With("round creation failed after %d attempts", s.cfg.CreateAttempts).Wrap(lastErr)
	}

	var completed []string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		if err := tx.Model(&models.Round{}).
			Where("status = ?", models.RoundStatusActive).
			Pluck("id", &completed).Error; err != nil {
			return err
		}
		for _, id := range completed {
			if err := transition(tx, id, models.RoundStatusActive, models.RoundStatusCompleted, now); err != nil {
				return err
			}
		}
		if err := transition(tx, round.ID, models.RoundStatusPending, models.RoundStatusActive, now); err != nil {
			return err
		}
		var err error
		round, err = findRound(tx, round.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to activate round %s: %w", round.ID, err)
	}

	previous := ""
	if len(completed) > 0 {
		previous = completed[0]
	}
	if len(completed) > 1 {
		s.log.Warn().Strs("round_ids", completed).Msg("completed more than one active round during rotation")
	}
	s.log.Info().Str("round_id", round.ID).Str("previous_round_id", previous).Msg("🔄 round rotated")
	s.Events.Emit(notify.Event{
		Type:       notify.EventRoundRotated,
		RoundID:    round.ID,
		OccurredAt: s.now(),
		Payload: map[string]any{
			"previous_round_id": previous,
			"difficulty":        round.Difficulty,
			"image_url":         round.ImageURL,
		},
	})
	return round, nil
}

// GetActiveRound returns the active round, or nil when there is none.
func (s *RoundService) GetActiveRound(ctx context.Context) (*models.Round, error) {
	var round models.Round
	err := s.DB.WithContext(ctx).
		Where("status = ?", models.RoundStatusActive).
		Order("started_at DESC").
		First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active round: %w", err)
	}
	return &round, nil
}

func (s *RoundService) GetRoundByID(ctx context.Context, id string) (*models.Round, error) {
	return findRound(s.DB.WithContext(ctx), id)
}

// RecentRounds lists completed rounds, newest first.
func (s *RoundService) RecentRounds(ctx context.Context, limit int) ([]models.Round, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rounds []models.Round
	err := s.DB.WithContext(ctx).
		Where("status = ?", models.RoundStatusCompleted).
		Order("ended_at DESC").
		Limit(limit).
		Find(&rounds).Error
	return rounds, err
}

// HistoryEntry is a completed round with the words it was built from.
type HistoryEntry struct {
	models.PublicRound
	Words []string `json:"words"`
}

// RoundHistory is RecentRounds with prompts and seed words revealed.
func (s *RoundService) RoundHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	rounds, err := s.RecentRounds(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load round history: %w", err)
	}
	out := make([]HistoryEntry, len(rounds))
	for i := range rounds {
		words, err := s.Words.WordsForRound(ctx, rounds[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load words for round %s: %w", rounds[i].ID, err)
		}
		entry := HistoryEntry{PublicRound: rounds[i].Public(s.cfg.RoundDuration), Words: make([]string, len(words))}
		for j, w := range words {
			entry.Words[j] = w.Word
		}
		out[i] = entry
	}
	return out, nil
}

// ActiveRoundView is what a player sees for the current round.
type ActiveRoundView struct {
	Round      models.PublicRound `json:"round"`
	GuessCount int64              `json:"guess_count"`
	MyGuess    *models.Guess      `json:"my_guess,omitempty"`
}

// ActiveRoundView returns the active round for display. userID is optional.
// A nil view means no round is active.
func (s *RoundService) ActiveRoundView(ctx context.Context, userID string) (*ActiveRoundView, error) {
	round, err := s.GetActiveRound(ctx)
	if err != nil || round == nil {
		return nil, err
	}

	view := &ActiveRoundView{Round: round.Public(s.cfg.RoundDuration)}
	if err := s.DB.WithContext(ctx).Model(&models.Guess{}).Where("round_id = ?", round.ID).Count(&view.GuessCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count guesses: %w", err)
	}

	if userID != "" {
		var guess models.Guess
		err := s.DB.WithContext(ctx).Where("round_id = ? AND user_id = ?", round.ID, userID).First(&guess).Error
		switch {
		case err == nil:
			view.MyGuess = &guess
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, fmt.Errorf("failed to load guess: %w", err)
		}
	}
	return view, nil
}

// ensurePromptEmbedding fills a missing prompt embedding. A stored embedding
// is never overwritten.
func (s *RoundService) ensurePromptEmbedding(ctx context.Context, round *models.Round) error {
	if len(round.PromptEmbedding) > 0 {
		return nil
	}
	s.log.Warn().Str("round_id", round.ID).Msg("⚠️ round has no prompt embedding, repairing")

	emb, err := s.Embedder.Embed(ctx, round.Prompt)
	if err != nil {
		return ErrProviderFailure.With("prompt embedding via %s failed", s.Embedder.Name()).Wrap(err)
	}
	if len(emb.Vector) == 0 {
		return ErrInvalidVector.With("%s returned an empty prompt embedding", s.Embedder.Name())
	}
	// Only replace the value this caller saw; a concurrent repair that
	// landed first wins and is reloaded.
	res := s.DB.WithContext(ctx).
		Model(&models.Round{}).
		Where("id = ?", round.ID).
		Where("prompt_embedding IS NULL OR prompt_embedding = ?", round.PromptEmbedding).
		Update("prompt_embedding", datatypes.JSONSlice[float64](emb.Vector))
	if res.Error != nil {
		return fmt.Errorf("failed to store repaired embedding: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		stored, err := findRound(s.DB.WithContext(ctx), round.ID)
		if err != nil {
			return err
		}
		if len(stored.PromptEmbedding) == 0 {
			return ErrInvalidVector.With("round %s prompt embedding could not be repaired", round.ID)
		}
		round.PromptEmbedding = stored.PromptEmbedding
		return nil
	}
	round.PromptEmbedding = emb.Vector
	return nil
}

func findRound(db *gorm.DB, id string) (*models.Round, error) {
	var round models.Round
	if err := db.First(&round, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoundNotFound.With("round %s not found", id)
		}
		return nil, fmt.Errorf("failed to load round %s: %w", id, err)
	}
	return &round, nil
}

// transition applies a conditional status update so concurrent callers
// cannot both move the same round.
func transition(tx *gorm.DB, id string, from, to models.RoundStatus, at time.Time) error {
	updates := map[string]any{"status": to}
	switch to {
	case models.RoundStatusActive:
		updates["started_at"] = at
	case models.RoundStatusCompleted:
		updates["ended_at"] = at
	}

	res := tx.Model(&models.Round{}).Where("id = ? AND status = ?", id, from).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	current, err := findRound(tx, id)
	if err != nil {
		return err
	}
	return ErrInvalidTransition.With("cannot move round %s to %s: status is %s, expected %s", id, to, current.Status, from)
}
