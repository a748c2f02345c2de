package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/docconv/internal/domain"
	"github.com/cuongbtq/docconv/shared/database"
	"github.com/cuongbtq/docconv/shared/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	log := logger.NewDiscard().Logger
	client, err := database.NewClient(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "tasks.db"),
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	s := NewStore(client.GetDB(), log)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func statusPtr(s domain.Status) *domain.Status { return &s }
func strPtr(s string) *string                  { return &s }

func TestStore_Create(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job := &domain.Job{ID: "a1", InputPath: "data/a1/doc.pdf"}
	require.NoError(t, s.Create(ctx, job))
	assert.Equal(t, domain.StatusWaiting, job.Status)
	assert.False(t, job.CreatedAt.IsZero())

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "data/a1/doc.pdf", got.InputPath)
	assert.Equal(t, domain.StatusWaiting, got.Status)
	assert.Nil(t, got.OutputPath)
	assert.Nil(t, got.ContentArtifactPath)
}

func TestStore_Create_Duplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Create(ctx, &domain.Job{ID: "dup", InputPath: "first.pdf"}))
	require.NoError(t, s.Update(ctx, "dup", Update{Status: statusPtr(domain.StatusProcessing)}))

	err := s.Create(ctx, &domain.Job{ID: "dup", InputPath: "second.pdf"})
	assert.ErrorIs(t, err, domain.ErrDuplicateID)

	// the existing row is untouched
	got, err := s.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, "first.pdf", got.InputPath)
	assert.Equal(t, domain.StatusProcessing, got.Status)
}

func TestStore_Read(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Create(ctx, &domain.Job{ID: id, InputPath: id + ".pdf"}))
	}
	require.NoError(t, s.Update(ctx, "a", Update{Status: statusPtr(domain.StatusError)}))

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "all in insertion order", filter: Filter{}, want: []string{"c", "a", "b"}},
		{name: "by status", filter: Filter{Status: domain.StatusWaiting}, want: []string{"c", "b"}},
		{name: "by id", filter: Filter{ID: "b"}, want: []string{"b"}},
		{name: "by input path", filter: Filter{InputPath: "a.pdf"}, want: []string{"a"}},
		{name: "combined predicates", filter: Filter{ID: "a", Status: domain.StatusWaiting}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := s.Read(ctx, tt.filter)
			require.NoError(t, err)

			ids := make([]string, 0, len(jobs))
			for _, j := range jobs {
				ids = append(ids, j.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Create(ctx, &domain.Job{ID: "u1", InputPath: "u1.pdf"}))
	before, err := s.Get(ctx, "u1")
	require.NoError(t, err)

	err = s.Update(ctx, "u1", Update{
		Status:              statusPtr(domain.StatusConverted),
		OutputPath:          strPtr("out/u1.md"),
		ContentArtifactPath: strPtr("out/u1_content_list.json"),
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConverted, got.Status)
	require.NotNil(t, got.OutputPath)
	assert.Equal(t, "out/u1.md", *got.OutputPath)
	require.NotNil(t, got.ContentArtifactPath)
	assert.Equal(t, "out/u1_content_list.json", *got.ContentArtifactPath)
	assert.False(t, got.UpdatedAt.Before(before.UpdatedAt))

	// a status-only update keeps the paths
	require.NoError(t, s.Update(ctx, "u1", Update{Status: statusPtr(domain.StatusFinished)}))
	got, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, got.Status)
	require.NotNil(t, got.OutputPath)
	assert.Equal(t, "out/u1.md", *got.OutputPath)
}

func TestStore_Update_Errors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Create(ctx, &domain.Job{ID: "g1", InputPath: "g1.pdf"}))

	err := s.Update(ctx, "missing", Update{Status: statusPtr(domain.StatusError)})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	err = s.Update(ctx, "g1", Update{
		Status:       statusPtr(domain.StatusFinished),
		ExpectStatus: statusPtr(domain.StatusConverted),
	})
	assert.ErrorIs(t, err, domain.ErrStatusConflict)

	err = s.Update(ctx, "missing", Update{
		Status:       statusPtr(domain.StatusFinished),
		ExpectStatus: statusPtr(domain.StatusConverted),
	})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestStore_ClaimJob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Create(ctx, &domain.Job{ID: "cl", InputPath: "cl.pdf"}))

	job, err := s.ClaimJob(ctx, "cl")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, job.Status)
	assert.Equal(t, "cl.pdf", job.InputPath)

	_, err = s.ClaimJob(ctx, "cl")
	assert.ErrorIs(t, err, domain.ErrStatusConflict)

	_, err = s.ClaimJob(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestStore_ClaimJob_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Create(ctx, &domain.Job{ID: "race", InputPath: "race.pdf"}))

	const claimers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ClaimJob(ctx, "race"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestStore_ResetStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"p1", "p2", "w1"} {
		require.NoError(t, s.Create(ctx, &domain.Job{ID: id, InputPath: id + ".pdf"}))
	}
	_, err := s.ClaimJob(ctx, "p1")
	require.NoError(t, err)
	_, err = s.ClaimJob(ctx, "p2")
	require.NoError(t, err)

	n, err := s.ResetStatus(ctx, domain.StatusProcessing, domain.StatusWaiting)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	waiting, err := s.Read(ctx, Filter{Status: domain.StatusWaiting})
	require.NoError(t, err)
	assert.Len(t, waiting, 3)

	n, err = s.ResetStatus(ctx, domain.StatusProcessing, domain.StatusWaiting)
	require.NoError(t, err)
	assert.Zero(t, n)
}
