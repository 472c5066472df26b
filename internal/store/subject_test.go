package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ustoz-edu/apiserver/internal/db/dbtest"
	"github.com/ustoz-edu/apiserver/types"
)

func TestSubjectRepository_Lifecycle(t *testing.T) {
	repo := NewSubjectRepository(dbtest.Open(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, types.Subject{Name: "Mathematics", Description: "Algebra"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	_, err = repo.Create(ctx, types.Subject{Name: "Physics"})
	require.NoError(t, err)

	items, total, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	created.Name = "Higher Mathematics"
	updated, err := repo.Update(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "Higher Mathematics", updated.Name)
	assert.Equal(t, "Algebra", updated.Description)

	require.NoError(t, repo.Delete(ctx, created.ID))
	_, err = repo.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
