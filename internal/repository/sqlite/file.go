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
)

// CreateFile stores a dataset with its content. The folder must exist and
// the name must be free inside it.
func (db *DB) CreateFile(ctx context.Context, file *model.File) error {
	file.ID = xid.New().String()
	file.CreatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO files (id, folder_id, name, content_type, size, checksum, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID,
		file.FolderID,
		file.Name,
		file.ContentType,
		file.Size,
		file.Checksum,
		file.Content,
		file.CreatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperror.Conflict("file", file.Name)
		case isForeignKeyViolation(err):
			return apperror.NotFound("folder", file.FolderID)
		}
		return fmt.Errorf("sqlite: creating file: %w", err)
	}
	return nil
}

const fileColumns = `id, folder_id, name, content_type, size, checksum, created_at`

func (db *DB) GetFile(ctx context.Context, id string) (*model.File, error) {
	var f model.File
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = ?`,
		id,
	).Scan(&f.ID, &f.FolderID, &f.Name, &f.ContentType, &f.Size, &f.Checksum, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("file", id)
		}
		return nil, fmt.Errorf("sqlite: getting file %s: %w", id, err)
	}
	return &f, nil
}

func (db *DB) GetFileContent(ctx context.Context, id string) (*model.File, error) {
	var f model.File
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+fileColumns+`, content FROM files WHERE id = ?`,
		id,
	).Scan(&f.ID, &f.FolderID, &f.Name, &f.ContentType, &f.Size, &f.Checksum, &f.CreatedAt, &f.Content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("file", id)
		}
		return nil, fmt.Errorf("sqlite: getting file %s: %w", id, err)
	}
	return &f, nil
}

// ListFiles returns a folder's files in upload order. An unknown folder
// yields apperror.ErrNotFound rather than an empty list.
func (db *DB) ListFiles(ctx context.Context, folderID string) ([]model.File, error) {
	if _, err := db.GetFolder(ctx, folderID); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE folder_id = ? ORDER BY created_at, id`,
		folderID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing files: %w", err)
	}
	defer rows.Close()

	files := []model.File{}
	for rows.Next() {
		var f model.File
		if err := rows.Scan(&f.ID, &f.FolderID, &f.Name, &f.ContentType, &f.Size, &f.Checksum, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning file row: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating files: %w", err)
	}
	return files, nil
}

func (db *DB) DeleteFile(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting file %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("file", id)
	}
	return nil
}
