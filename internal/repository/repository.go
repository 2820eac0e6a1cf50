// Package repository declares the storage contracts of the dataset catalog.
package repository

import (
	"context"

	"github.com/sakif/analysis-runner/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type FolderRepository interface {
	CreateFolder(ctx context.Context, folder *model.Folder) error
	GetFolder(ctx context.Context, id string) (*model.Folder, error)
	ListFolders(ctx context.Context, opts ListOptions) ([]model.Folder, error)
	// DeleteFolder removes the folder and every file in it.
	DeleteFolder(ctx context.Context, id string) error
}

type FileRepository interface {
	CreateFile(ctx context.Context, file *model.File) error
	// GetFile returns metadata only; Content is left empty.
	GetFile(ctx context.Context, id string) (*model.File, error)
	// GetFileContent returns metadata and Content.
	GetFileContent(ctx context.Context, id string) (*model.File, error)
	ListFiles(ctx context.Context, folderID string) ([]model.File, error)
	DeleteFile(ctx context.Context, id string) error
}

// DatasetRepository is implemented by stores that hold both folders and files.
type DatasetRepository interface {
	FolderRepository
	FileRepository
	Ping(ctx context.Context) error
}
