package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"prompt-guess-game/models"
	"prompt-guess-game/notify"
	"prompt-guess-game/providers/embedding"
	"prompt-guess-game/providers/imagegen"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestDB opens a private in-memory database. A single connection keeps
// the in-memory schema alive and serializes writers.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// seedWords inserts perCategory words for each standard category.
func seedWords(t *testing.T, db *gorm.DB, perCategory int) []models.WordBankEntry {
	t.Helper()
	var words []models.WordBankEntry
	for _, category := range categoryOrder {
		for i := 0; i < perCategory; i++ {
			words = append(words, models.WordBankEntry{
				ID:       uuid.NewString(),
				Word:     fmt.Sprintf("%s%c", category, 'a'+i),
				Category: category,
			})
		}
	}
	require.NoError(t, db.Create(&words).Error)
	return words
}

var testWordConfig = WordConfig{
	DifficultyWordCounts: map[string]int{"easy": 3, "normal": 5, "hard": 8},
	DefaultDifficulty:    "normal",
	Lookback:             10,
	Threshold:            0.5,
}

type mockImages struct{ mock.Mock }

func (m *mockImages) Name() string { return "mock-images" }

func (m *mockImages) Generate(ctx context.Context, prompt string, opts *imagegen.Options) (*imagegen.Result, error) {
	args := m.Called(ctx, prompt, opts)
	res, _ := args.Get(0).(*imagegen.Result)
	return res, args.Error(1)
}

type mockStore struct{ mock.Mock }

func (m *mockStore) Save(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

// recordingEmitter keeps every emitted event.
type recordingEmitter struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingEmitter) Emit(ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type fixture struct {
	db      *gorm.DB
	clock   *clockwork.FakeClock
	words   *WordService
	rounds  *RoundService
	scoring *ScoringService
	events  *recordingEmitter
}

type fixtureOption func(*RoundDeps)

func withImages(p imagegen.Provider) fixtureOption {
	return func(d *RoundDeps) { d.Images = p }
}

func withStore(s *mockStore) fixtureOption {
	return func(d *RoundDeps) { d.Store = s }
}

func withEmbedder(p embedding.Provider) fixtureOption {
	return func(d *RoundDeps) { d.Embedder = p }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	db := newTestDB(t)
	seedWords(t, db, 4)

	f := &fixture{
		db:     db,
		clock:  clockwork.NewFakeClockAt(testStart),
		events: &recordingEmitter{},
	}
	f.words = NewWordService(db, testWordConfig)

	deps := RoundDeps{
		Words:    f.words,
		Prompts:  NewPromptService(nil),
		Images:   imagegen.NewPlaceholder(""),
		Embedder: embedding.NewDeterministic(0),
		Events:   f.events,
		Clock:    f.clock,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.rounds = NewRoundService(db, deps, RoundConfig{RoundDuration: 24 * time.Hour})
	f.scoring = NewScoringService(db, f.rounds, deps.Embedder, f.events, ScoringConfig{MaxGuessLength: 50})
	return f
}

// activeRound creates and activates a round, failing the test on error.
func (f *fixture) activeRound(t *testing.T) *models.Round {
	t.Helper()
	round, err := f.rounds.CreateAndActivateRound(context.Background(), "")
	require.NoError(t, err)
	return round
}

// insertRound stores a round directly, bypassing the creation pipeline.
func (f *fixture) insertRound(t *testing.T, prompt string, status models.RoundStatus) *models.Round {
	t.Helper()
	emb, err := embedding.NewDeterministic(0).Embed(context.Background(), prompt)
	require.NoError(t, err)

	round := &models.Round{
		ID:              uuid.NewString(),
		Prompt:          prompt,
		ImageURL:        "https://img.test/" + uuid.NewString(),
		Status:          status,
		PromptEmbedding: emb.Vector,
		PromptSource:    models.PromptSourceTemplated,
		Difficulty:      "normal",
		WordCount:       5,
	}
	now := f.clock.Now()
	if status != models.RoundStatusPending {
		round.StartedAt = &now
	}
	if status == models.RoundStatusCompleted {
		round.EndedAt = &now
	}
	require.NoError(t, f.db.Create(round).Error)
	return round
}
