package datapond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/will-hinson/datapond/internal/emulation"
)

// apiVersion is the x-ms-version the emulator reports. Client libraries
// only check for its presence, so it stays a placeholder.
const apiVersion = "0.0"

// maxListResults is the pagination placeholder reported in container
// listings. The emulator never actually paginates.
const maxListResults = 5000

const (
	conditionInternalError = "InternalError"
	internalErrorMessage   = "The server encountered an internal error. Please retry the request."
)

// containerItem is one container entry in a listing page.
type containerItem struct {
	Name       string                  `json:"Name"`
	Deleted    bool                    `json:"Deleted"`
	Version    string                  `json:"Version"`
	Properties containerItemProperties `json:"Properties"`
	Metadata   map[string]string       `json:"Metadata"`
}

type containerItemProperties struct {
	LastModified string `json:"Last-Modified"`
	Etag         string `json:"Etag"`
}

// containerListPage is the envelope the container listing streams once per
// container, shaped the way Data Lake client libraries expect: the
// pagination fields are present but permanently empty.
type containerListPage struct {
	ContainerItems  []containerItem `json:"ContainerItems"`
	Marker          string          `json:"Marker"`
	MaxResults      int             `json:"MaxResults"`
	Prefix          string          `json:"Prefix"`
	ServiceEndpoint string          `json:"ServiceEndpoint"`
}

// pathItem is one resource entry in a path listing.
type pathItem struct {
	Name          string `json:"name"`
	IsDirectory   bool   `json:"isDirectory"`
	ContentLength int64  `json:"contentLength"`
	CreationTime  string `json:"creationTime"`
	LastModified  string `json:"lastModified"`
}

// pathListing is the JSON envelope for the path listing operation.
type pathListing struct {
	Paths []pathItem `json:"paths"`
}

// filesystemAck acknowledges a container create or delete.
type filesystemAck struct {
	FilesystemName string `json:"filesystem_name"`
}

// directoryAck acknowledges a directory create.
type directoryAck struct {
	DirectoryName string `json:"directory_name"`
}

// fileAck acknowledges a file create.
type fileAck struct {
	FileName string `json:"file_name"`
}

// filesystemPropertiesBody renders a container's stored record.
type filesystemPropertiesBody struct {
	Date         string            `json:"date"`
	LastModified string            `json:"last_modified"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// writeStorageError writes the single-key JSON error body that Data Lake
// client libraries parse, for example {"FilesystemNotFound": "..."}.
func writeStorageError(w http.ResponseWriter, condition string, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{condition: message})
}

// writeEngineError renders an engine failure. Storage errors carry their own
// condition and map onto a client-facing status; anything else is logged
// under op and reported as a generic internal error.
func writeEngineError(w http.ResponseWriter, op string, err error, logAttrs ...any) {
	if storageErr, ok := emulation.AsStorageError(err); ok {
		writeStorageError(w, storageErr.Condition, storageErr.Message, statusForCondition(storageErr.Condition))
		return
	}

	slog.Error(op, append(logAttrs, "err", err)...)
	writeStorageError(w, conditionInternalError, internalErrorMessage, http.StatusInternalServerError)
}

// statusForCondition maps a storage error condition onto its HTTP status.
func statusForCondition(condition string) int {
	switch condition {
	case emulation.ConditionInvalidResourceName,
		emulation.ConditionMissingRequiredQueryParameter,
		emulation.ConditionInvalidQueryParameterValue:
		return http.StatusBadRequest
	case emulation.ConditionFilesystemNotFound,
		emulation.ConditionResourceNotFound,
		emulation.ConditionPathNotFound:
		return http.StatusNotFound
	case emulation.ConditionFilesystemAlreadyExists,
		emulation.ConditionPathAlreadyExists,
		emulation.ConditionDirectoryNotEmpty:
		return http.StatusConflict
	case emulation.ConditionServerBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONResponse encodes v as JSON and writes it to w with the given status.
func writeJSONResponse(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// serviceEndpoint reconstructs the base URL clients used to reach the
// emulator, for echoing back in listing envelopes.
func serviceEndpoint(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
