package event

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/erp/realty/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockDeadLetterRepo is an in-memory DeadLetterRepository
type mockDeadLetterRepo struct {
	entries   map[uuid.UUID]*shared.OutboxEntry
	updateErr error
}

func newMockDeadLetterRepo(entries ...*shared.OutboxEntry) *mockDeadLetterRepo {
	r := &mockDeadLetterRepo{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return r
}

func (r *mockDeadLetterRepo) FindDead(_ context.Context, limit int) ([]*shared.OutboxEntry, error) {
	var result []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusDead {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *mockDeadLetterRepo) FindByEventID(_ context.Context, eventID uuid.UUID) (*shared.OutboxEntry, error) {
	for _, e := range r.entries {
		if e.EventID == eventID {
			return e, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *mockDeadLetterRepo) Update(_ context.Context, entry *shared.OutboxEntry) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.entries[entry.ID] = entry
	return nil
}

func (r *mockDeadLetterRepo) CountByStatus(context.Context) (map[shared.OutboxStatus]int64, error) {
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func outboxEntry(status shared.OutboxStatus) *shared.OutboxEntry {
	return &shared.OutboxEntry{
		ID:         uuid.New(),
		EventID:    uuid.New(),
		EventType:  "CommissionTriggered",
		Status:     status,
		RetryCount: shared.DefaultMaxRetries,
		MaxRetries: shared.DefaultMaxRetries,
		LastError:  "sink unavailable",
	}
}

func TestOutboxService_ListDead(t *testing.T) {
	dead := outboxEntry(shared.OutboxStatusDead)
	svc := NewOutboxService(newMockDeadLetterRepo(dead, outboxEntry(shared.OutboxStatusSent)), zap.NewNop())

	entries, err := svc.ListDead(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, dead.EventID, entries[0].EventID)
	assert.Equal(t, "sink unavailable", entries[0].LastError)
}

func TestOutboxService_Requeue(t *testing.T) {
	ctx := context.Background()
	dead := outboxEntry(shared.OutboxStatusDead)
	sent := outboxEntry(shared.OutboxStatusSent)
	repo := newMockDeadLetterRepo(dead, sent)
	svc := NewOutboxService(repo, zap.NewNop())

	t.Run("resets dead entry", func(t *testing.T) {
		dto, err := svc.Requeue(ctx, dead.EventID)
		require.NoError(t, err)
		assert.Equal(t, string(shared.OutboxStatusPending), dto.Status)
		assert.Zero(t, dto.RetryCount)
		assert.Empty(t, repo.entries[dead.ID].LastError)
	})

	t.Run("unknown event", func(t *testing.T) {
		_, err := svc.Requeue(ctx, uuid.New())
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "ENTRY_NOT_FOUND", domainErr.Code)
	})

	t.Run("entry not dead", func(t *testing.T) {
		_, err := svc.Requeue(ctx, sent.EventID)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_STATUS", domainErr.Code)
	})
}

func TestOutboxService_RequeueAll(t *testing.T) {
	ctx := context.Background()
	repo := newMockDeadLetterRepo(
		outboxEntry(shared.OutboxStatusDead),
		outboxEntry(shared.OutboxStatusDead),
		outboxEntry(shared.OutboxStatusFailed),
	)
	svc := NewOutboxService(repo, zap.NewNop())

	count, err := svc.RequeueAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Zero(t, stats.Dead)
	assert.Equal(t, int64(3), stats.Total)
}

func TestOutboxService_RequeueAll_StopsWhenUpdatesFail(t *testing.T) {
	repo := newMockDeadLetterRepo(outboxEntry(shared.OutboxStatusDead))
	repo.updateErr = errors.New("connection reset")
	svc := NewOutboxService(repo, zap.NewNop())

	count, err := svc.RequeueAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
