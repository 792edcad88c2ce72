package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"prompt-guess-game/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRotator struct{ mock.Mock }

func (m *mockRotator) GetActiveRound(ctx context.Context) (*models.Round, error) {
	args := m.Called(ctx)
	round, _ := args.Get(0).(*models.Round)
	return round, args.Error(1)
}

func (m *mockRotator) CreateAndActivateRound(ctx context.Context, difficulty string) (*models.Round, error) {
	args := m.Called(ctx, difficulty)
	round, _ := args.Get(0).(*models.Round)
	return round, args.Error(1)
}

func startedRound(id string, at time.Time) *models.Round {
	return &models.Round{ID: id, Status: models.RoundStatusActive, StartedAt: &at}
}

// The check interval is long enough that advancing the fake clock never
// fires the periodic job; tests drive tick directly.
var testSchedulerConfig = SchedulerConfig{RoundDuration: 24 * time.Hour, CheckInterval: 1000 * time.Hour}

func newTestScheduler(t *testing.T, rotator RoundRotator) (*Scheduler, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testStart)
	s := NewScheduler(rotator, testSchedulerConfig, clock)
	t.Cleanup(func() { _ = s.Stop() })
	return s, clock
}

func TestSchedulerStartCreatesRoundWhenNoneActive(t *testing.T) {
	rotator := &mockRotator{}
	rotator.On("GetActiveRound", mock.Anything).Return(nil, nil)
	rotator.On("CreateAndActivateRound", mock.Anything, "").Return(startedRound("r1", testStart), nil).Once()

	s, _ := newTestScheduler(t, rotator)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")

	assert.True(t, s.Running())
	next := s.NextRotationTime()
	require.NotNil(t, next)
	assert.True(t, next.Equal(testStart.Add(24*time.Hour)))
	rotator.AssertNumberOfCalls(t, "CreateAndActivateRound", 1)
}

func TestSchedulerStartKeepsUnexpiredRound(t *testing.T) {
	started := testStart.Add(-time.Hour)
	rotator := &mockRotator{}
	rotator.On("GetActiveRound", mock.Anything).Return(startedRound("r1", started), nil)

	s, _ := newTestScheduler(t, rotator)
	require.NoError(t, s.Start(context.Background()))

	rotator.AssertNotCalled(t, "CreateAndActivateRound", mock.Anything, mock.Anything)
	next := s.NextRotationTime()
	require.NotNil(t, next)
	assert.True(t, next.Equal(started.Add(24*time.Hour)))
}

func TestSchedulerTickRotatesExpiredRound(t *testing.T) {
	rotator := &mockRotator{}
	rotator.On("GetActiveRound", mock.Anything).Return(startedRound("r1", testStart), nil).Once()
	s, clock := newTestScheduler(t, rotator)
	require.NoError(t, s.Start(context.Background()))

	clock.Advance(24 * time.Hour)
	now := clock.Now()
	rotator.On("GetActiveRound", mock.Anything).Return(startedRound("r1", testStart), nil).Once()
	rotator.On("CreateAndActivateRound", mock.Anything, "").Return(startedRound("r2", now), nil).Once()

	s.tick(context.Background())

	rotator.AssertExpectations(t)
	next := s.NextRotationTime()
	require.NotNil(t, next)
	assert.True(t, next.Equal(now.Add(24*time.Hour)))
}

func TestSchedulerTickFailureKeepsSchedule(t *testing.T) {
	rotator := &mockRotator{}
	rotator.On("GetActiveRound", mock.Anything).Return(startedRound("r1", testStart), nil).Once()
	s, clock := newTestScheduler(t, rotator)
	require.NoError(t, s.Start(context.Background()))
	before := s.NextRotationTime()

	clock.Advance(25 * time.Hour)
	rotator.On("GetActiveRound", mock.Anything).Return(startedRound("r1", testStart), nil)
	rotator.On("CreateAndActivateRound", mock.Anything, "").Return(nil, errors.New("image provider down"))

	require.NotPanics(t, func() { s.tick(context.Background()) })
	assert.Equal(t, before, s.NextRotationTime())
	assert.True(t, s.Running())
}

func TestSchedulerTickLoadFailure(t *testing.T) {
	rotator := &mockRotator{}
	rotator.On("GetActiveRound", mock.Anything).Return(nil, errors.New("db down"))

	s, _ := newTestScheduler(t, rotator)
	require.NoError(t, s.Start(context.Background()))

	rotator.AssertNotCalled(t, "CreateAndActivateRound", mock.Anything, mock.Anything)
	assert.Nil(t, s.NextRotationTime())
}

func TestSchedulerStop(t *testing.T) {
	rotator := &mockRotator{}
	rotator.On("GetActiveRound", mock.Anything).Return(startedRound("r1", testStart), nil)

	s, _ := newTestScheduler(t, rotator)
	require.NoError(t, s.Start(context.Background()))
	require.NotNil(t, s.NextRotationTime())

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.False(t, s.Running())
	assert.Nil(t, s.NextRotationTime())
}

func TestSchedulerManualRotation(t *testing.T) {
	rotator := &mockRotator{}
	rotator.On("CreateAndActivateRound", mock.Anything, "").Return(startedRound("manual", testStart), nil)

	s, _ := newTestScheduler(t, rotator)
	round, err := s.RotateRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "manual", round.ID)
	assert.Nil(t, s.NextRotationTime(), "not reported while stopped")
}

// slowRotator counts overlapping rotations.
type slowRotator struct {
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (r *slowRotator) GetActiveRound(context.Context) (*models.Round, error) { return nil, nil }

func (r *slowRotator) CreateAndActivateRound(context.Context, string) (*models.Round, error) {
	r.mu.Lock()
	r.active++
	if r.active > r.maxSeen {
		r.maxSeen = r.active
	}
	r.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
	return startedRound("r", testStart), nil
}

func TestSchedulerSerializesRotations(t *testing.T) {
	rotator := &slowRotator{}
	s, _ := newTestScheduler(t, rotator)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.RotateRound(context.Background())
		}()
		go func() {
			defer wg.Done()
			s.tick(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, rotator.maxSeen)
}

func TestSchedulerWithRoundService(t *testing.T) {
	f := newFixture(t)
	s := NewScheduler(f.rounds, testSchedulerConfig, f.clock)
	t.Cleanup(func() { _ = s.Stop() })

	require.NoError(t, s.Start(context.Background()))
	first, err := f.rounds.GetActiveRound(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)

	f.clock.Advance(24 * time.Hour)
	s.tick(context.Background())

	second, err := f.rounds.GetActiveRound(context.Background())
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
}
