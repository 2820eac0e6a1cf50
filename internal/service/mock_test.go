package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/sakif/analysis-runner/internal/analysis"
	"github.com/sakif/analysis-runner/internal/apperror"
	"github.com/sakif/analysis-runner/internal/model"
	"github.com/sakif/analysis-runner/internal/repository"
)

// =========================================================================
// MOCK REPOSITORY
// =========================================================================

// mockDatasetRepo keeps folders and files in memory.
type mockDatasetRepo struct {
	folders map[string]*model.Folder
	files   map[string]*model.File
	nextID  int
	err     error
}

func newMockRepo() *mockDatasetRepo {
	return &mockDatasetRepo{
		folders: make(map[string]*model.Folder),
		files:   make(map[string]*model.File),
	}
}

func (m *mockDatasetRepo) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *mockDatasetRepo) CreateFolder(_ context.Context, folder *model.Folder) error {
	if m.err != nil {
		return m.err
	}
	for _, f := range m.folders {
		if f.Name == folder.Name {
			return apperror.Conflict("folder", folder.Name)
		}
	}
	folder.ID = m.id("folder")
	stored := *folder
	m.folders[folder.ID] = &stored
	return nil
}

func (m *mockDatasetRepo) GetFolder(_ context.Context, id string) (*model.Folder, error) {
	f, ok := m.folders[id]
	if !ok {
		return nil, apperror.NotFound("folder", id)
	}
	result := *f
	return &result, nil
}

func (m *mockDatasetRepo) ListFolders(_ context.Context, opts repository.ListOptions) ([]model.Folder, error) {
	if m.err != nil {
		return nil, m.err
	}
	result := make([]model.Folder, 0, len(m.folders))
	for _, f := range m.folders {
		result = append(result, *f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	if opts.Offset >= len(result) {
		return []model.Folder{}, nil
	}
	result = result[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (m *mockDatasetRepo) DeleteFolder(_ context.Context, id string) error {
	if _, ok := m.folders[id]; !ok {
		return apperror.NotFound("folder", id)
	}
	delete(m.folders, id)
	for fid, f := range m.files {
		if f.FolderID == id {
			delete(m.files, fid)
		}
	}
	return nil
}

func (m *mockDatasetRepo) CreateFile(_ context.Context, file *model.File) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.folders[file.FolderID]; !ok {
		return apperror.NotFound("folder", file.FolderID)
	}
	file.ID = m.id("file")
	stored := *file
	m.files[file.ID] = &stored
	return nil
}

func (m *mockDatasetRepo) GetFile(ctx context.Context, id string) (*model.File, error) {
	f, err := m.GetFileContent(ctx, id)
	if err != nil {
		return nil, err
	}
	f.Content = ""
	return f, nil
}

func (m *mockDatasetRepo) GetFileContent(_ context.Context, id string) (*model.File, error) {
	f, ok := m.files[id]
	if !ok {
		return nil, apperror.NotFound("file", id)
	}
	result := *f
	return &result, nil
}

func (m *mockDatasetRepo) ListFiles(_ context.Context, folderID string) ([]model.File, error) {
	if _, ok := m.folders[folderID]; !ok {
		return nil, apperror.NotFound("folder", folderID)
	}
	var result []model.File
	for _, f := range m.files {
		if f.FolderID == folderID {
			meta := *f
			meta.Content = ""
			result = append(result, meta)
		}
	}
	return result, nil
}

func (m *mockDatasetRepo) DeleteFile(_ context.Context, id string) error {
	if _, ok := m.files[id]; !ok {
		return apperror.NotFound("file", id)
	}
	delete(m.files, id)
	return nil
}

func (m *mockDatasetRepo) Ping(context.Context) error { return m.err }

// =========================================================================
// MOCK RUNNER
// =========================================================================

type mockRunner struct {
	captured *analysis.Request
	resp     *analysis.Response
	err      error
	calls    int
}

func (m *mockRunner) ExecuteAnalysis(_ context.Context, req analysis.Request) (*analysis.Response, error) {
	m.calls++
	m.captured = &req
	if m.err != nil {
		return nil, m.err
	}
	if m.resp != nil {
		return m.resp, nil
	}
	return &analysis.Response{Status: analysis.StatusUnknown}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
