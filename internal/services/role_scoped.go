package services

import (
	"context"

	"github.com/ustoz-edu/apiserver/internal/store"
	"github.com/ustoz-edu/apiserver/types"
)

// RoleScopedRepository is a view over identities of a single role. Reads
// never see other roles and every write is forced to the view's role.
type RoleScopedRepository struct {
	identities *IdentityService
	role       types.Role
}

func NewRoleScopedRepository(identities *IdentityService, role types.Role) *RoleScopedRepository {
	return &RoleScopedRepository{identities: identities, role: role}
}

// Students, Teachers and Admins return the three views exposed over HTTP.
func Students(identities *IdentityService) *RoleScopedRepository {
	return NewRoleScopedRepository(identities, types.RoleStudent)
}

func Teachers(identities *IdentityService) *RoleScopedRepository {
	return NewRoleScopedRepository(identities, types.RoleTeacher)
}

func Admins(identities *IdentityService) *RoleScopedRepository {
	return NewRoleScopedRepository(identities, types.RoleAdmin)
}

func (r *RoleScopedRepository) Role() types.Role {
	return r.role
}

func (r *RoleScopedRepository) List(ctx context.Context, offset, limit int) ([]types.Identity, int, error) {
	return r.identities.List(ctx, store.IdentityFilter{Role: r.role}, offset, limit)
}

// Get reports store.ErrNotFound for identities holding another role.
func (r *RoleScopedRepository) Get(ctx context.Context, id int) (types.Identity, error) {
	identity, err := r.identities.Get(ctx, id)
	if err != nil {
		return types.Identity{}, err
	}
	if identity.Role != r.role {
		return types.Identity{}, store.ErrNotFound
	}
	return identity, nil
}

// Save overwrites the role before delegating to IdentityService.Save.
func (r *RoleScopedRepository) Save(ctx context.Context, identity types.Identity) (types.Identity, error) {
	identity.Role = r.role
	return r.identities.Save(ctx, identity)
}

func (r *RoleScopedRepository) Register(ctx context.Context, in Registration) (types.Identity, error) {
	in.Role = r.role
	return r.identities.Register(ctx, in)
}

func (r *RoleScopedRepository) Update(ctx context.Context, id int, patch IdentityPatch) (types.Identity, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return types.Identity{}, err
	}
	role := r.role
	patch.Role = &role
	return r.identities.Update(ctx, id, patch)
}

func (r *RoleScopedRepository) Delete(ctx context.Context, id int) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return r.identities.Delete(ctx, id)
}
