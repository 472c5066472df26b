package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ustoz-edu/apiserver/internal/db/dbtest"
	"github.com/ustoz-edu/apiserver/types"
)

func newIdentity(email, first, last string, role types.Role) types.Identity {
	return types.Identity{
		Email:        email,
		Username:     first,
		FirstName:    first,
		LastName:     last,
		ProfileImage: types.DefaultProfileImage,
		IsStudying:   true,
		Role:         role,
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		IsActive:     true,
	}
}

func TestIdentityRepository_CRUD(t *testing.T) {
	repo := NewIdentityRepository(dbtest.Open(t))
	ctx := context.Background()

	phone := "+998901234567"
	in := newIdentity("ali@example.com", "Ali", "Valiyev", types.RoleStudent)
	in.PhoneNumber = &phone

	created, err := repo.Create(ctx, in)
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ali@example.com", got.Email)
	assert.Equal(t, types.RoleStudent, got.Role)
	require.NotNil(t, got.PhoneNumber)
	assert.Equal(t, phone, *got.PhoneNumber)
	assert.True(t, got.IsStudying)
	assert.True(t, got.IsActive)
	assert.False(t, got.IsStaff)

	byEmail, err := repo.GetByEmail(ctx, "ali@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	got.Role = types.RoleTeacher
	got.PhoneNumber = nil
	_, err = repo.Update(ctx, got)
	require.NoError(t, err)

	updated, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleTeacher, updated.Role)
	assert.Nil(t, updated.PhoneNumber)

	require.NoError(t, repo.Delete(ctx, created.ID))
	_, err = repo.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, created.ID), ErrNotFound)

	_, err = repo.Update(ctx, updated)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIdentityRepository_ListFiltersByRole(t *testing.T) {
	repo := NewIdentityRepository(dbtest.Open(t))
	ctx := context.Background()

	seed := []types.Identity{
		newIdentity("s1@example.com", "Sardor", "One", types.RoleStudent),
		newIdentity("s2@example.com", "Sardor", "Two", types.RoleStudent),
		newIdentity("t1@example.com", "Tohir", "One", types.RoleTeacher),
		newIdentity("a1@example.com", "Aziz", "One", types.RoleAdmin),
	}
	for _, identity := range seed {
		_, err := repo.Create(ctx, identity)
		require.NoError(t, err)
	}

	all, total, err := repo.List(ctx, IdentityFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, all, 4)

	students, total, err := repo.List(ctx, IdentityFilter{Role: types.RoleStudent}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, s := range students {
		assert.Equal(t, types.RoleStudent, s.Role)
	}

	page, total, err := repo.List(ctx, IdentityFilter{Role: types.RoleStudent}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, "s2@example.com", page[0].Email)
}

func TestIdentityRepository_UniqueConstraints(t *testing.T) {
	repo := NewIdentityRepository(dbtest.Open(t))
	ctx := context.Background()

	_, err := repo.Create(ctx, newIdentity("dup@example.com", "Ali", "Valiyev", types.RoleStudent))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newIdentity("dup@example.com", "Bobur", "Karimov", types.RoleStudent))
	require.ErrorIs(t, err, ErrConstraintViolation)
	var constraintErr *ConstraintError
	require.True(t, errors.As(err, &constraintErr))
	assert.Equal(t, "email", constraintErr.Field)

	_, err = repo.Create(ctx, newIdentity("other@example.com", "Ali", "Valiyev", types.RoleTeacher))
	require.ErrorIs(t, err, ErrConstraintViolation)
	require.True(t, errors.As(err, &constraintErr))
	assert.Equal(t, "full_name", constraintErr.Field)
}
