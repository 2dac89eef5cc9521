package imagebin

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"imagebin/internal/store"
)

// indexFileName is the default metadata snapshot artifact, stored on the same
// volume as the blobs themselves.
const indexFileName = "meta.json"

// multipartOverhead is slack allowed on top of the blob size ceiling for
// multipart framing and headers when capping the request body.
const multipartOverhead = 1 << 20

// Config holds configuration for the upload server.
type Config struct {
	// DataDir is the directory where blobs and the metadata index live.
	DataDir string

	// AllowedOrigin is the origin echoed in CORS headers. Empty disables
	// cross-origin access.
	AllowedOrigin string

	// Index overrides the metadata index backing. When nil, a JSON snapshot
	// index at DataDir/meta.json is used.
	Index store.Index
}

// Server exposes the blob store over HTTP: multipart upload, retrieval by
// opaque id, soft delete, and filtered listing. Physical storage paths never
// appear in any response.
type Server struct {
	cfg   Config
	store *store.Store
}

// NewServer prepares the data directory and metadata index and returns a new
// Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("DataDir must not be empty")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	if cfg.Index == nil {
		idx, err := store.NewSnapshotIndex(filepath.Join(cfg.DataDir, indexFileName))
		if err != nil {
			return nil, err
		}
		cfg.Index = idx
	}

	return &Server{cfg: cfg, store: store.New(cfg.DataDir, cfg.Index)}, nil
}

// Close releases any resources held by the metadata index.
func (s *Server) Close() error {
	if c, ok := s.cfg.Index.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// handleUpload implements POST /upload. The blob arrives as the multipart
// form field "data"; its declared filename supplies the extension for the
// type policy and is echoed back as the public name.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Cap the whole request body. The store enforces the exact per-blob
	// ceiling incrementally; this bound only keeps multipart parsing from
	// buffering an unbounded body.
	r.Body = http.MaxBytesReader(w, r.Body, store.MaxBlobSize+multipartOverhead)

	file, header, err := r.FormFile("data")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, "The file is too large.", http.StatusBadRequest)
			return
		}
		writeJSONError(w, "The upload must carry a file in the 'data' field.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	meta, err := s.store.Upload(file, header.Filename, header.Size)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidType):
			writeJSONError(w, "File is of the wrong type.", http.StatusBadRequest)
		case errors.Is(err, store.ErrTooLarge):
			writeJSONError(w, "The file is too large.", http.StatusBadRequest)
		default:
			slog.Error("Upload", "name", header.Filename, "err", err)
			writeJSONError(w, internalErrorMessage, http.StatusInternalServerError)
		}
		return
	}

	slog.Info("File stored", "id", meta.ID, "size", meta.Size)
	writeJSONResponse(w, http.StatusOK, meta)
}

// handleGetFile implements GET /static/{fileID}, serving a blob by its
// opaque id so the disk path is never exposed to the client.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("fileID")

	rec, err := s.store.FetchByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		slog.Error("Fetch file", "id", id, "err", err)
		writeJSONError(w, internalErrorMessage, http.StatusInternalServerError)
		return
	}

	http.ServeFile(w, r, rec.Path)
}

// handleRemove implements DELETE /removeupload/{fileID}. Delete is strictly
// id-keyed; removal is a soft delete and is terminal, so deleting the same
// id twice reports not found the second time.
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("fileID")

	removed, err := s.store.Remove(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, "No upload with that id.", http.StatusNotFound)
			return
		}
		slog.Error("Remove file", "id", id, "err", err)
		writeJSONError(w, internalErrorMessage, http.StatusInternalServerError)
		return
	}

	slog.Info("Marked a file as deleted", "id", removed)
	writeJSONResponse(w, http.StatusAccepted, removeResponse{ID: removed})
}

// handleList implements GET /listuploads and GET /listuploads/{name}; with a
// name segment, only uploads whose original name contains it are returned.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	metas, err := s.store.List(name)
	if err != nil {
		slog.Error("List uploads", "filter", name, "err", err)
		writeJSONError(w, internalErrorMessage, http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, metas)
}
