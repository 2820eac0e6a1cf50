package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/analysis-runner/internal/apperror"
	"github.com/sakif/analysis-runner/internal/model"
)

// Datasets is the catalog API. *service.DatasetService implements it.
type Datasets interface {
	MaxUpload() int64
	CreateFolder(ctx context.Context, name string) (*model.Folder, error)
	GetFolder(ctx context.Context, id string) (*model.Folder, error)
	ListFolders(ctx context.Context, limit, offset int) ([]model.Folder, error)
	DeleteFolder(ctx context.Context, id string) error
	Upload(ctx context.Context, folderID, filename string, body io.Reader) (*model.File, error)
	ListFiles(ctx context.Context, folderID string) ([]model.File, error)
	GetFile(ctx context.Context, id string) (*model.File, error)
	GetFileContent(ctx context.Context, id string) (*model.File, error)
	DeleteFile(ctx context.Context, id string) error
	Preview(ctx context.Context, id string) (*model.Preview, error)
}

// DatasetHandler serves folders and the CSV files inside them.
type DatasetHandler struct {
	datasets Datasets
	logger   *slog.Logger
}

func NewDatasetHandler(datasets Datasets, logger *slog.Logger) *DatasetHandler {
	return &DatasetHandler{datasets: datasets, logger: logger}
}

// HandleCreateFolder creates a folder.
//
// HTTP: POST /api/folders
// REQUEST BODY: {"name": "sales"}
func (h *DatasetHandler) HandleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	folder, err := h.datasets.CreateFolder(r.Context(), body.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

// HandleListFolders lists folders, newest first.
//
// HTTP: GET /api/folders?limit=50&offset=0
func (h *DatasetHandler) HandleListFolders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	folders, err := h.datasets.ListFolders(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if folders == nil {
		folders = []model.Folder{}
	}
	writeJSON(w, http.StatusOK, folders)
}

// HandleGetFolder returns one folder.
//
// HTTP: GET /api/folders/{id}
func (h *DatasetHandler) HandleGetFolder(w http.ResponseWriter, r *http.Request) {
	folder, err := h.datasets.GetFolder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

// HandleDeleteFolder removes a folder and every file in it.
//
// HTTP: DELETE /api/folders/{id}
func (h *DatasetHandler) HandleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := h.datasets.DeleteFolder(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpload stores a CSV file in a folder.
//
// HTTP: POST /api/folders/{id}/files (multipart/form-data, field "file")
//
// The body is capped with http.MaxBytesReader a little above the upload
// limit so multipart framing fits; the service enforces the exact limit on
// the file itself.
func (h *DatasetHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	limit := h.datasets.MaxUpload()
	r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, apperror.ValidationFailed("file",
				"file must be "+strconv.FormatInt(limit, 10)+" bytes or less"))
			return
		}
		writeError(w, apperror.ValidationFailed("file", "expected a multipart form with a file field"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperror.ValidationFailed("file", "no file provided"))
		return
	}
	defer file.Close()

	stored, err := h.datasets.Upload(r.Context(), chi.URLParam(r, "id"), header.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// HandleListFiles lists the files of a folder.
//
// HTTP: GET /api/folders/{id}/files
func (h *DatasetHandler) HandleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.datasets.ListFiles(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if files == nil {
		files = []model.File{}
	}
	writeJSON(w, http.StatusOK, files)
}

// HandleGetFile returns file metadata.
//
// HTTP: GET /api/files/{id}
func (h *DatasetHandler) HandleGetFile(w http.ResponseWriter, r *http.Request) {
	file, err := h.datasets.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// HandleContent streams the raw CSV.
//
// HTTP: GET /api/files/{id}/content
func (h *DatasetHandler) HandleContent(w http.ResponseWriter, r *http.Request) {
	file, err := h.datasets.GetFileContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Content)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, file.Content); err != nil {
		h.logger.Warn("failed to write file content",
			slog.String("id", file.ID),
			slog.String("error", err.Error()),
		)
	}
}

// HandlePreview returns the header and a few sample rows.
//
// HTTP: GET /api/files/{id}/preview
func (h *DatasetHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.datasets.Preview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// HandleDeleteFile removes one file.
//
// HTTP: DELETE /api/files/{id}
func (h *DatasetHandler) HandleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.datasets.DeleteFile(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
