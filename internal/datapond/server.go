package datapond

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/will-hinson/datapond/internal/emulation"
)

const (
	missingQueryParameterMessage = "A query parameter that's mandatory for this request is not specified."
	invalidQueryParameterMessage = "Value for one of the query parameters specified in the request URI is invalid."
)

type Config struct {
	// RootDir is the local directory containers are emulated under.
	RootDir string

	// FailureChance is the probability in [0, 1] that any request is
	// rejected with ServerBusy before reaching a handler.
	FailureChance float64

	// FailureRoll overrides the random source used by failure injection.
	// Nil selects math/rand. Tests use a fixed roll for determinism.
	FailureRoll func() float64
}

// Server provides a Data Lake Gen2 compatible HTTP API backed by a local
// directory tree.
type Server struct {
	cfg      Config
	emulator *emulation.Emulator
}

// NewServer prepares the emulator root directory and returns a new Server.
func NewServer(cfg Config) (*Server, error) {

	if cfg.RootDir == "" {
		return nil, errors.New("RootDir must not be empty")
	}

	if cfg.FailureChance < 0 || cfg.FailureChance > 1 {
		return nil, fmt.Errorf("FailureChance must be within [0, 1], got %v", cfg.FailureChance)
	}

	if cfg.FailureRoll == nil {
		cfg.FailureRoll = rand.Float64
	}

	emulator, err := emulation.NewEmulator(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("prepare emulator root: %w", err)
	}

	return &Server{cfg: cfg, emulator: emulator}, nil
}

// Emulator exposes the storage engine backing this server.
func (s *Server) Emulator() *emulation.Emulator {
	return s.emulator
}

// writeMissingQueryParameter reports a required query parameter as absent.
func writeMissingQueryParameter(w http.ResponseWriter) {
	writeStorageError(w, emulation.ConditionMissingRequiredQueryParameter,
		missingQueryParameterMessage, http.StatusBadRequest)
}

// writeInvalidQueryParameterValue reports a query parameter with an
// unsupported value.
func writeInvalidQueryParameterValue(w http.ResponseWriter) {
	writeStorageError(w, emulation.ConditionInvalidQueryParameterValue,
		invalidQueryParameterMessage, http.StatusBadRequest)
}

// boolParam parses an optional boolean query parameter. Only the literal
// strings "true" and "false" are accepted; anything else reports ok=false
// so the caller can reject the request rather than guess.
func boolParam(q url.Values, name string, defaultValue bool) (value bool, ok bool) {
	if !q.Has(name) {
		return defaultValue, true
	}
	switch q.Get(name) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// parsePropertiesHeader parses the comma separated key=value list carried
// by the x-ms-properties header. Items without an equals sign or with an
// empty key are skipped.
func parsePropertiesHeader(header string) map[string]string {
	metadata := map[string]string{}
	for _, item := range strings.Split(header, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, found := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		metadata[key] = strings.TrimSpace(value)
	}
	return metadata
}

// ------ Dispatchers for account-level HTTP handlers ------

// handleServiceGet dispatches GET / between the container listing and the
// default denial for everything else hitting the account root.
func (s *Server) handleServiceGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("comp") == "list" {
		s.handleListFilesystems(w, r)
		return
	}

	writeStorageError(w, "Forbidden", "Access to this resource has been disallowed", http.StatusForbidden)
}

// ------ Dispatchers for filesystem-level HTTP handlers ------

// handleFilesystemPut dispatches PUT /filesystem?restype=container between
// container creation and the metadata update variant (comp=metadata).
func (s *Server) handleFilesystemPut(w http.ResponseWriter, r *http.Request, filesystem string) {
	q := r.URL.Query()
	if !q.Has("restype") {
		writeMissingQueryParameter(w)
		return
	}
	if q.Get("restype") != "container" {
		writeInvalidQueryParameterValue(w)
		return
	}

	if strings.EqualFold(q.Get("comp"), "metadata") {
		s.handleSetFilesystemProperties(w, r, filesystem)
		return
	}

	s.handleCreateFilesystem(w, r, filesystem)
}

// handleFilesystemGet dispatches GET /filesystem between the path listing
// (resource=filesystem) and container properties retrieval
// (restype=container).
func (s *Server) handleFilesystemGet(w http.ResponseWriter, r *http.Request, filesystem string) {
	q := r.URL.Query()

	if q.Has("resource") {
		if q.Get("resource") != "filesystem" {
			writeInvalidQueryParameterValue(w)
			return
		}

		recursive, ok := boolParam(q, "recursive", true)
		if !ok {
			writeInvalidQueryParameterValue(w)
			return
		}

		s.handleListPaths(w, r, filesystem, q.Get("directory"), recursive)
		return
	}

	if !q.Has("restype") {
		writeMissingQueryParameter(w)
		return
	}
	if q.Get("restype") != "container" {
		writeInvalidQueryParameterValue(w)
		return
	}

	s.handleGetFilesystemProperties(w, r, filesystem)
}

// handleFilesystemDelete implements DELETE /filesystem?restype=container.
func (s *Server) handleFilesystemDelete(w http.ResponseWriter, r *http.Request, filesystem string) {
	q := r.URL.Query()
	if !q.Has("restype") {
		writeMissingQueryParameter(w)
		return
	}
	if q.Get("restype") != "container" {
		writeInvalidQueryParameterValue(w)
		return
	}

	s.handleDeleteFilesystem(w, r, filesystem)
}

// ------ Dispatchers for path-level HTTP handlers ------

// handlePathPut dispatches PUT /filesystem/path between directory and file
// creation based on the resource parameter.
func (s *Server) handlePathPut(w http.ResponseWriter, r *http.Request, filesystem string, path string) {
	q := r.URL.Query()
	if !q.Has("resource") {
		writeMissingQueryParameter(w)
		return
	}

	switch q.Get("resource") {
	case "directory":
		s.handleCreateDirectory(w, r, filesystem, path)
	case "file":
		s.handleCreateFile(w, r, filesystem, path)
	default:
		writeInvalidQueryParameterValue(w)
	}
}

// handlePathPatch dispatches PATCH /filesystem/path between the append and
// flush halves of the two-phase write protocol.
func (s *Server) handlePathPatch(w http.ResponseWriter, r *http.Request, filesystem string, path string) {
	q := r.URL.Query()
	if !q.Has("action") {
		writeMissingQueryParameter(w)
		return
	}

	switch q.Get("action") {
	case "append":
		if !q.Has("position") {
			writeMissingQueryParameter(w)
			return
		}
		position, err := strconv.ParseInt(q.Get("position"), 10, 64)
		if err != nil || position < 0 {
			writeInvalidQueryParameterValue(w)
			return
		}
		s.handleAppendPath(w, r, filesystem, path, position)
	case "flush":
		s.handleFlushPath(w, r, filesystem, path)
	default:
		writeInvalidQueryParameterValue(w)
	}
}

// handlePathDelete implements DELETE /filesystem/path[?recursive=].
func (s *Server) handlePathDelete(w http.ResponseWriter, r *http.Request, filesystem string, path string) {
	recursive, ok := boolParam(r.URL.Query(), "recursive", false)
	if !ok {
		writeInvalidQueryParameterValue(w)
		return
	}

	if err := s.emulator.DeletePath(filesystem, path, recursive); err != nil {
		writeEngineError(w, "Delete path", err, "filesystem", filesystem, "path", path)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// ------ Individual API HTTP handlers ------

// handleCreateFilesystem implements PUT /filesystem?restype=container.
func (s *Server) handleCreateFilesystem(w http.ResponseWriter, r *http.Request, filesystem string) {
	if err := s.emulator.CreateFilesystem(filesystem); err != nil {
		writeEngineError(w, "Create filesystem", err, "filesystem", filesystem)
		return
	}

	if err := writeJSONResponse(w, http.StatusCreated, filesystemAck{FilesystemName: filesystem}); err != nil {
		slog.Error("Encode create filesystem response", "filesystem", filesystem, "err", err)
	}
}

// handleDeleteFilesystem implements DELETE /filesystem?restype=container.
func (s *Server) handleDeleteFilesystem(w http.ResponseWriter, r *http.Request, filesystem string) {
	if err := s.emulator.DeleteFilesystem(filesystem); err != nil {
		writeEngineError(w, "Delete filesystem", err, "filesystem", filesystem)
		return
	}

	if err := writeJSONResponse(w, http.StatusAccepted, filesystemAck{FilesystemName: filesystem}); err != nil {
		slog.Error("Encode delete filesystem response", "filesystem", filesystem, "err", err)
	}
}

// handleGetFilesystemProperties implements GET /filesystem?restype=container.
// The stored record is surfaced both as headers and as the response body.
func (s *Server) handleGetFilesystemProperties(w http.ResponseWriter, r *http.Request, filesystem string) {
	rec, err := s.emulator.GetFilesystemProperties(filesystem)
	if err != nil {
		writeEngineError(w, "Get filesystem properties", err, "filesystem", filesystem)
		return
	}

	w.Header().Set("Date", rec.Date.UTC().Format(http.TimeFormat))
	w.Header().Set("Last-Modified", rec.LastModified.UTC().Format(http.TimeFormat))
	w.Header().Set("ETag", uuid.NewString())

	body := filesystemPropertiesBody{
		Date:         rec.Date.UTC().Format(http.TimeFormat),
		LastModified: rec.LastModified.UTC().Format(http.TimeFormat),
		Metadata:     rec.Metadata,
	}
	if err := writeJSONResponse(w, http.StatusOK, body); err != nil {
		slog.Error("Encode filesystem properties", "filesystem", filesystem, "err", err)
	}
}

// handleSetFilesystemProperties implements
// PUT /filesystem?restype=container&comp=metadata, merging the key=value
// pairs from the x-ms-properties header into the stored record.
func (s *Server) handleSetFilesystemProperties(w http.ResponseWriter, r *http.Request, filesystem string) {
	metadata := parsePropertiesHeader(r.Header.Get("x-ms-properties"))

	rec, err := s.emulator.SetFilesystemProperties(filesystem, metadata)
	if err != nil {
		writeEngineError(w, "Set filesystem properties", err, "filesystem", filesystem)
		return
	}

	w.Header().Set("Last-Modified", rec.LastModified.UTC().Format(http.TimeFormat))

	body := filesystemPropertiesBody{
		Date:         rec.Date.UTC().Format(http.TimeFormat),
		LastModified: rec.LastModified.UTC().Format(http.TimeFormat),
		Metadata:     rec.Metadata,
	}
	if err := writeJSONResponse(w, http.StatusOK, body); err != nil {
		slog.Error("Encode filesystem properties", "filesystem", filesystem, "err", err)
	}
}

// handleListFilesystems implements GET /?comp=list. Each container is
// streamed as its own single-item listing page, the chunked transport shape
// Data Lake client libraries consume.
func (s *Server) handleListFilesystems(w http.ResponseWriter, r *http.Request) {
	filesystems, err := s.emulator.ListFilesystems()
	if err != nil {
		writeEngineError(w, "List filesystems", err)
		return
	}

	endpoint := serviceEndpoint(r)
	flusher, _ := w.(http.Flusher)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(w)
	for _, filesystem := range filesystems {
		metadata := filesystem.Properties.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}

		page := containerListPage{
			ContainerItems: []containerItem{{
				Name:    filesystem.Name,
				Deleted: false,
				Version: apiVersion,
				Properties: containerItemProperties{
					LastModified: filesystem.Properties.LastModified.UTC().Format(http.TimeFormat),
					Etag:         uuid.NewString(),
				},
				Metadata: metadata,
			}},
			Marker:          "",
			MaxResults:      maxListResults,
			Prefix:          "",
			ServiceEndpoint: endpoint,
		}

		if err := encoder.Encode(page); err != nil {
			slog.Error("Encode container listing page", "filesystem", filesystem.Name, "err", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// handleCreateDirectory implements PUT /filesystem/path?resource=directory.
func (s *Server) handleCreateDirectory(w http.ResponseWriter, r *http.Request, filesystem string, path string) {
	if err := s.emulator.CreateDirectory(filesystem, path); err != nil {
		writeEngineError(w, "Create directory", err, "filesystem", filesystem, "path", path)
		return
	}

	if err := writeJSONResponse(w, http.StatusCreated, directoryAck{DirectoryName: path}); err != nil {
		slog.Error("Encode create directory response", "filesystem", filesystem, "path", path, "err", err)
	}
}

// handleCreateFile implements PUT /filesystem/path?resource=file.
func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request, filesystem string, path string) {
	if err := s.emulator.CreateFile(filesystem, path); err != nil {
		writeEngineError(w, "Create file", err, "filesystem", filesystem, "path", path)
		return
	}

	if err := writeJSONResponse(w, http.StatusCreated, fileAck{FileName: path}); err != nil {
		slog.Error("Encode create file response", "filesystem", filesystem, "path", path, "err", err)
	}
}

// handleReadPath implements GET /filesystem/path to retrieve file contents.
func (s *Server) handleReadPath(w http.ResponseWriter, r *http.Request, filesystem string, path string) {
	data, err := s.emulator.ReadPath(filesystem, path)
	if err != nil {
		writeEngineError(w, "Read path", err, "filesystem", filesystem, "path", path)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("Stream path contents", "filesystem", filesystem, "path", path, "err", err)
	}
}

// handleGetPathProperties implements HEAD /filesystem/path, surfacing the
// resource's metadata as headers with no body.
func (s *Server) handleGetPathProperties(w http.ResponseWriter, r *http.Request, filesystem string, path string) {
	entry, err := s.emulator.GetPathProperties(filesystem, path)
	if err != nil {
		writeEngineError(w, "Get path properties", err, "filesystem", filesystem, "path", path)
		return
	}

	resourceType := "file"
	if entry.IsDirectory {
		resourceType = "directory"
	}

	w.Header().Set("x-ms-resource-type", resourceType)
	w.Header().Set("Last-Modified", entry.LastModified.UTC().Format(http.TimeFormat))
	if !entry.IsDirectory {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.FormatInt(entry.ContentLength, 10))
	}

	w.WriteHeader(http.StatusOK)
}

// handleListPaths implements GET /filesystem?resource=filesystem to list the
// resources under a container, optionally scoped to a directory.
func (s *Server) handleListPaths(w http.ResponseWriter, r *http.Request, filesystem string, directory string, recursive bool) {
	entries, err := s.emulator.ListPaths(filesystem, directory, recursive)
	if err != nil {
		writeEngineError(w, "List paths", err, "filesystem", filesystem, "directory", directory)
		return
	}

	listing := pathListing{Paths: make([]pathItem, 0, len(entries))}
	for _, entry := range entries {
		listing.Paths = append(listing.Paths, pathItem{
			Name:          entry.Name,
			IsDirectory:   entry.IsDirectory,
			ContentLength: entry.ContentLength,
			CreationTime:  entry.CreationTime.UTC().Format(http.TimeFormat),
			LastModified:  entry.LastModified.UTC().Format(http.TimeFormat),
		})
	}

	if err := writeJSONResponse(w, http.StatusOK, listing); err != nil {
		slog.Error("Encode path listing", "filesystem", filesystem, "err", err)
	}
}

// handleAppendPath implements PATCH /filesystem/path?action=append&position=N,
// buffering the request body until a flush commits it.
func (s *Server) handleAppendPath(w http.ResponseWriter, r *http.Request, filesystem string, path string, position int64) {
	defer r.Body.Close()
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("Read append payload", "filesystem", filesystem, "path", path, "err", err)
		writeStorageError(w, "InvalidRequest", "Failed to read request body.", http.StatusBadRequest)
		return
	}

	if err := s.emulator.AppendPath(filesystem, path, payload, position); err != nil {
		writeEngineError(w, "Append path", err, "filesystem", filesystem, "path", path)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// handleFlushPath implements PATCH /filesystem/path?action=flush, committing
// any buffered appends in offset order.
func (s *Server) handleFlushPath(w http.ResponseWriter, r *http.Request, filesystem string, path string) {
	if err := s.emulator.FlushPath(filesystem, path); err != nil {
		writeEngineError(w, "Flush path", err, "filesystem", filesystem, "path", path)
		return
	}

	w.Header().Set("ETag", uuid.NewString())
	w.WriteHeader(http.StatusOK)
}
