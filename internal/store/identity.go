package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ustoz-edu/apiserver/types"
)

const identityColumns = `id, email, username, first_name, last_name, profile_image, phone_number,
		is_studying, role, password_hash, is_staff, is_active, created_at, updated_at`

// IdentityFilter narrows List results. A zero Role matches every role.
type IdentityFilter struct {
	Role types.Role
}

// IdentityRepository handles persistence for identities.
type IdentityRepository struct {
	db *sql.DB
}

func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (types.Identity, error) {
	var identity types.Identity
	var phone sql.NullString
	var role string
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.Username,
		&identity.FirstName,
		&identity.LastName,
		&identity.ProfileImage,
		&phone,
		&identity.IsStudying,
		&role,
		&identity.PasswordHash,
		&identity.IsStaff,
		&identity.IsActive,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return types.Identity{}, err
	}
	identity.Role = types.Role(role)
	if phone.Valid {
		identity.PhoneNumber = &phone.String
	}
	return identity, nil
}

func (r *IdentityRepository) List(ctx context.Context, filter IdentityFilter, offset, limit int) ([]types.Identity, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	where := ""
	var args []any
	if filter.Role != "" {
		where = ` WHERE role = $1`
		args = append(args, string(filter.Role))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := fmt.Sprintf(`
		SELECT %s
		FROM users%s
		ORDER BY id
		LIMIT $%d OFFSET $%d`, identityColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, listQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	identities := make([]types.Identity, 0, limit)
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, 0, err
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return identities, total, nil
}

func (r *IdentityRepository) GetByID(ctx context.Context, id int) (types.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM users WHERE id = $1`
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Identity{}, ErrNotFound
		}
		return types.Identity{}, err
	}
	return identity, nil
}

func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (types.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM users WHERE email = $1`
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Identity{}, ErrNotFound
		}
		return types.Identity{}, err
	}
	return identity, nil
}

func (r *IdentityRepository) Create(ctx context.Context, identity types.Identity) (types.Identity, error) {
	now := time.Now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	const query = `
		INSERT INTO users (email, username, first_name, last_name, profile_image, phone_number,
			is_studying, role, password_hash, is_staff, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		identity.Email,
		identity.Username,
		identity.FirstName,
		identity.LastName,
		identity.ProfileImage,
		nullString(identity.PhoneNumber),
		identity.IsStudying,
		string(identity.Role),
		identity.PasswordHash,
		identity.IsStaff,
		identity.IsActive,
		identity.CreatedAt,
		identity.UpdatedAt,
	).Scan(&identity.ID); err != nil {
		return types.Identity{}, translateError(err)
	}
	return identity, nil
}

func (r *IdentityRepository) Update(ctx context.Context, identity types.Identity) (types.Identity, error) {
	identity.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE users
		SET email = $1,
			username = $2,
			first_name = $3,
			last_name = $4,
			profile_image = $5,
			phone_number = $6,
			is_studying = $7,
			role = $8,
			password_hash = $9,
			is_staff = $10,
			is_active = $11,
			updated_at = $12
		WHERE id = $13`
	result, err := r.db.ExecContext(
		ctx,
		query,
		identity.Email,
		identity.Username,
		identity.FirstName,
		identity.LastName,
		identity.ProfileImage,
		nullString(identity.PhoneNumber),
		identity.IsStudying,
		string(identity.Role),
		identity.PasswordHash,
		identity.IsStaff,
		identity.IsActive,
		identity.UpdatedAt,
		identity.ID,
	)
	if err != nil {
		return types.Identity{}, translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Identity{}, err
	}
	if affected == 0 {
		return types.Identity{}, ErrNotFound
	}
	return identity, nil
}

func (r *IdentityRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
