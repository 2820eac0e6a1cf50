package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/analysis-runner/internal/apperror"
	"github.com/sakif/analysis-runner/internal/model"
	"github.com/sakif/analysis-runner/internal/repository"
)

// CreateFolder inserts a folder and fills in its ID and timestamp. A name
// that is already taken yields apperror.ErrConflict.
func (db *DB) CreateFolder(ctx context.Context, folder *model.Folder) error {
	folder.ID = xid.New().String()
	folder.CreatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO folders (id, name, created_at) VALUES (?, ?, ?)`,
		folder.ID,
		folder.Name,
		folder.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("folder", folder.Name)
		}
		return fmt.Errorf("sqlite: creating folder: %w", err)
	}
	return nil
}

func (db *DB) GetFolder(ctx context.Context, id string) (*model.Folder, error) {
	var f model.Folder
	err := db.conn.QueryRowContext(ctx,
		`SELECT f.id, f.name, f.created_at, COUNT(x.id)
		 FROM folders f
		 LEFT JOIN files x ON x.folder_id = f.id
		 WHERE f.id = ?
		 GROUP BY f.id`,
		id,
	).Scan(&f.ID, &f.Name, &f.CreatedAt, &f.FileCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("folder", id)
		}
		return nil, fmt.Errorf("sqlite: getting folder %s: %w", id, err)
	}
	return &f, nil
}

// ListFolders returns folders by name with their file counts.
func (db *DB) ListFolders(ctx context.Context, opts repository.ListOptions) ([]model.Folder, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := max(opts.Offset, 0)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT f.id, f.name, f.created_at, COUNT(x.id)
		 FROM folders f
		 LEFT JOIN files x ON x.folder_id = f.id
		 GROUP BY f.id
		 ORDER BY f.name
		 LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing folders: %w", err)
	}
	defer rows.Close()

	folders := make([]model.Folder, 0, limit)
	for rows.Next() {
		var f model.Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.CreatedAt, &f.FileCount); err != nil {
			return nil, fmt.Errorf("sqlite: scanning folder row: %w", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating folders: %w", err)
	}
	return folders, nil
}

// DeleteFolder removes a folder; its files go with it through the cascading
// foreign key.
func (db *DB) DeleteFolder(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting folder %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("folder", id)
	}
	return nil
}
