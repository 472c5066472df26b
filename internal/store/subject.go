package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ustoz-edu/apiserver/types"
)

// SubjectRepository handles persistence for subjects.
type SubjectRepository struct {
	db *sql.DB
}

func NewSubjectRepository(db *sql.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func (r *SubjectRepository) List(ctx context.Context, offset, limit int) ([]types.Subject, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const countQuery = `SELECT COUNT(1) FROM subjects`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT id, name, description, created_at, updated_at
		FROM subjects
		ORDER BY id
		LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, listQuery, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	subjects := make([]types.Subject, 0, limit)
	for rows.Next() {
		var subject types.Subject
		if err := rows.Scan(
			&subject.ID,
			&subject.Name,
			&subject.Description,
			&subject.CreatedAt,
			&subject.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		subjects = append(subjects, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return subjects, total, nil
}

func (r *SubjectRepository) Get(ctx context.Context, id int) (types.Subject, error) {
	const query = `
		SELECT id, name, description, created_at, updated_at
		FROM subjects
		WHERE id = $1`
	var subject types.Subject
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&subject.ID,
		&subject.Name,
		&subject.Description,
		&subject.CreatedAt,
		&subject.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Subject{}, ErrNotFound
		}
		return types.Subject{}, err
	}
	return subject, nil
}

func (r *SubjectRepository) Create(ctx context.Context, subject types.Subject) (types.Subject, error) {
	now := time.Now().UTC()
	subject.CreatedAt = now
	subject.UpdatedAt = now

	const query = `
		INSERT INTO subjects (name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		subject.Name,
		subject.Description,
		subject.CreatedAt,
		subject.UpdatedAt,
	).Scan(&subject.ID); err != nil {
		return types.Subject{}, translateError(err)
	}
	return subject, nil
}

// Update overwrites name and description. CreatedAt is reloaded so the
// returned value mirrors the stored row.
func (r *SubjectRepository) Update(ctx context.Context, subject types.Subject) (types.Subject, error) {
	subject.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE subjects
		SET name = $1,
			description = $2,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(
		ctx,
		query,
		subject.Name,
		subject.Description,
		subject.UpdatedAt,
		subject.ID,
	)
	if err != nil {
		return types.Subject{}, translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Subject{}, err
	}
	if affected == 0 {
		return types.Subject{}, ErrNotFound
	}
	return r.Get(ctx, subject.ID)
}

func (r *SubjectRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM subjects WHERE id = $1`
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
