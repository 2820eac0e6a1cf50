package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"

	"github.com/sakif/analysis-runner/internal/apperror"
	"github.com/sakif/analysis-runner/internal/model"
	"github.com/sakif/analysis-runner/internal/repository"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200

	// DefaultMaxUpload caps a single dataset.
	DefaultMaxUpload = 10 << 20

	previewRows = 5
	sampleRows  = 3
)

// DatasetService manages folders of uploaded CSV datasets.
type DatasetService struct {
	repo      repository.DatasetRepository
	maxUpload int64
	logger    *slog.Logger
}

func NewDatasetService(repo repository.DatasetRepository, maxUpload int64, logger *slog.Logger) *DatasetService {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	return &DatasetService{
		repo:      repo,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// MaxUpload returns the largest accepted dataset in bytes.
func (s *DatasetService) MaxUpload() int64 { return s.maxUpload }

func (s *DatasetService) CreateFolder(ctx context.Context, name string) (*model.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "folder name is required")
	}
	if len(name) > MaxFolderNameLen {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("folder name must be %d characters or less", MaxFolderNameLen))
	}

	folder := &model.Folder{Name: name}
	if err := s.repo.CreateFolder(ctx, folder); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to create folder",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating folder: %w", err)
	}

	s.logger.Info("folder created",
		slog.String("id", folder.ID),
		slog.String("name", folder.Name),
	)
	return folder, nil
}

func (s *DatasetService) GetFolder(ctx context.Context, id string) (*model.Folder, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "folder ID is required")
	}
	return s.repo.GetFolder(ctx, id)
}

// ListFolders clamps limit to 1..MaxListLimit and offset to >= 0.
func (s *DatasetService) ListFolders(ctx context.Context, limit, offset int) ([]model.Folder, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	folders, err := s.repo.ListFolders(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list folders", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	return folders, nil
}

// DeleteFolder removes a folder together with its files.
func (s *DatasetService) DeleteFolder(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "folder ID is required")
	}
	if err := s.repo.DeleteFolder(ctx, id); err != nil {
		return err
	}
	s.logger.Info("folder deleted", slog.String("id", id))
	return nil
}

// Upload stores a CSV dataset in a folder. The name is sanitised, only .csv
// files are accepted and the body must be UTF-8 text no larger than the
// configured maximum.
func (s *DatasetService) Upload(ctx context.Context, folderID, filename string, body io.Reader) (*model.File, error) {
	folderID = strings.TrimSpace(folderID)
	if folderID == "" {
		return nil, apperror.ValidationFailed("folderId", "no folder selected")
	}
	if strings.TrimSpace(filename) == "" {
		return nil, apperror.ValidationFailed("file", "no file provided")
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return nil, apperror.ValidationFailed("file", "only CSV files are allowed")
	}

	name := SanitizeFileName(filename)
	if err := ValidateFileName("file", name); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(body, s.maxUpload+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(raw)) > s.maxUpload {
		return nil, apperror.ValidationFailed("file",
			fmt.Sprintf("file must be %d bytes or less", s.maxUpload))
	}
	if !utf8.Valid(raw) {
		return nil, apperror.ValidationFailed("file", "file must be UTF-8 text")
	}
	if _, err := csv.NewReader(bytes.NewReader(raw)).Read(); err != nil && !errors.Is(err, io.EOF) {
		return nil, apperror.ValidationFailed("file", "file is not valid CSV: "+err.Error())
	}

	sum := blake2b.Sum256(raw)
	file := &model.File{
		FolderID:    folderID,
		Name:        name,
		ContentType: "text/csv",
		Size:        int64(len(raw)),
		Checksum:    hex.EncodeToString(sum[:]),
		Content:     string(raw),
	}
	if err := s.repo.CreateFile(ctx, file); err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to store file",
			slog.String("folder", folderID),
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("storing file: %w", err)
	}

	s.logger.Info("file uploaded",
		slog.String("id", file.ID),
		slog.String("folder", folderID),
		slog.String("name", name),
		slog.Int64("size", file.Size),
	)
	file.Content = ""
	return file, nil
}

func (s *DatasetService) ListFiles(ctx context.Context, folderID string) ([]model.File, error) {
	folderID = strings.TrimSpace(folderID)
	if folderID == "" {
		return nil, apperror.ValidationFailed("id", "folder ID is required")
	}
	return s.repo.ListFiles(ctx, folderID)
}

func (s *DatasetService) GetFile(ctx context.Context, id string) (*model.File, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "file ID is required")
	}
	return s.repo.GetFile(ctx, id)
}

// GetFileContent returns the file including its body.
func (s *DatasetService) GetFileContent(ctx context.Context, id string) (*model.File, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "file ID is required")
	}
	return s.repo.GetFileContent(ctx, id)
}

func (s *DatasetService) DeleteFile(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "file ID is required")
	}
	if err := s.repo.DeleteFile(ctx, id); err != nil {
		return err
	}
	s.logger.Info("file deleted", slog.String("id", id))
	return nil
}

// Preview returns the header and up to three sample rows of a dataset.
func (s *DatasetService) Preview(ctx context.Context, id string) (*model.Preview, error) {
	f, err := s.GetFileContent(ctx, id)
	if err != nil {
		return nil, err
	}
	p := SummarizeCSV(f.Content)
	return &p, nil
}

// SummarizeCSV reads the header and at most five data rows, skipping empty
// lines, and keeps the first three rows that have a non-empty value. Rows are
// padded or truncated to the header width. Malformed input yields whatever
// was read before the error.
func SummarizeCSV(content string) model.Preview {
	r := csv.NewReader(strings.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	p := model.Preview{Columns: []string{}, Samples: [][]string{}}

	header, err := r.Read()
	if err != nil {
		return p
	}
	p.Columns = header

	for read := 0; read < previewRows; read++ {
		row, err := r.Read()
		if err != nil {
			break
		}
		if len(p.Samples) == sampleRows || !hasValue(row) {
			continue
		}
		aligned := make([]string, len(header))
		copy(aligned, row)
		p.Samples = append(p.Samples, aligned)
	}
	return p
}

func hasValue(row []string) bool {
	for _, v := range row {
		if v != "" {
			return true
		}
	}
	return false
}
