package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/cascade/repository"
	"cascade_backend/platform/logger"
	"cascade_backend/platform/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func finalizedAgo(mem *repository.Memory, status domain.Status, now time.Time, ago time.Duration) domain.Assignment {
	a := domain.Assignment{
		ID:           uuid.New(),
		LeadID:       uuid.New(),
		ConsultantID: uuid.New(),
		Status:       status,
		AssignedAt:   now.Add(-ago - time.Hour),
	}
	a.ChainID = a.ID
	if status.IsTerminal() {
		at := now.Add(-ago)
		a.FinalizedAt = &at
	}
	mem.Put(a)
	return a
}

func TestSweepDeletesOnlyOldFinalizedRows(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	mem := repository.NewMemory()
	old := finalizedAgo(mem, domain.StatusExpired, now, 31*24*time.Hour)
	recent := finalizedAgo(mem, domain.StatusCompleted, now, 5*24*time.Hour)
	pending := finalizedAgo(mem, domain.StatusEscalated, now, 60*24*time.Hour)

	m := metrics.New()
	s := NewRetentionSweeper(mem, logger.Discard(), m, time.Hour, 30*24*time.Hour)
	s.now = func() time.Time { return now }

	assert.Equal(t, int64(1), s.Sweep(context.Background()))

	_, err := mem.GetByID(context.Background(), old.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = mem.GetByID(context.Background(), recent.ID)
	assert.NoError(t, err)
	_, err = mem.GetByID(context.Background(), pending.ID)
	assert.NoError(t, err, "pending rows are never purged")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RetentionDeleted))
	assert.Equal(t, int64(0), s.Sweep(context.Background()), "second pass has nothing left")
}

type failingPurger struct{}

func (failingPurger) DeleteFinalizedBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("db down")
}

func TestSweepSurvivesStoreErrors(t *testing.T) {
	s := NewRetentionSweeper(failingPurger{}, nil, nil, 0, 0)
	assert.Equal(t, int64(0), s.Sweep(context.Background()))
	assert.Equal(t, defaultRetentionInterval, s.interval)
	assert.Equal(t, defaultRetentionWindow, s.window)
}
