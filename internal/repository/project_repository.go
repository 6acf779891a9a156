package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sorapixel/studio/internal/models"
)

type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, p *models.Project) error {
	images, err := json.Marshal(p.Images)
	if err != nil {
		return fmt.Errorf("marshal project images: %w", err)
	}
	const query = `INSERT INTO projects (id, account_id, title, project_type, images) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, p.ID, p.AccountID, p.Title, string(p.Kind), string(images)); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// FindForAccount returns the project only when it belongs to accountID.
func (r *ProjectRepository) FindForAccount(ctx context.Context, accountID, id string) (*models.Project, error) {
	const query = `
SELECT id, account_id, title, project_type, images, created_at
FROM projects WHERE id = ? AND account_id = ?`
	p, err := scanProject(r.db.QueryRowContext(ctx, query, id, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *ProjectRepository) List(ctx context.Context, accountID string, kind models.GenerationKind, limit, offset int) ([]models.Project, error) {
	query := `
SELECT id, account_id, title, project_type, images, created_at
FROM projects WHERE account_id = ?`
	args := []any{accountID}
	if kind != "" {
		query += ` AND project_type = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *ProjectRepository) Delete(ctx context.Context, accountID, id string) (bool, error) {
	const query = `DELETE FROM projects WHERE id = ? AND account_id = ?`
	res, err := r.db.ExecContext(ctx, query, id, accountID)
	if err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanProject(row rowScanner) (*models.Project, error) {
	var p models.Project
	var kind string
	var images []byte
	if err := row.Scan(&p.ID, &p.AccountID, &p.Title, &kind, &images, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.Kind = models.GenerationKind(kind)
	if len(images) > 0 {
		if err := json.Unmarshal(images, &p.Images); err != nil {
			return nil, fmt.Errorf("decode project images: %w", err)
		}
	}
	return &p, nil
}
