package emulation

import (
	"errors"
	"fmt"
)

// Condition names mirror the error codes the Data Lake Gen2 REST surface
// reports to clients. The HTTP layer maps each condition to a status code.
const (
	ConditionInvalidResourceName           = "InvalidResourceName"
	ConditionFilesystemNotFound            = "FilesystemNotFound"
	ConditionFilesystemAlreadyExists       = "FilesystemAlreadyExists"
	ConditionResourceNotFound              = "ResourceNotFound"
	ConditionPathNotFound                  = "PathNotFound"
	ConditionPathAlreadyExists             = "PathAlreadyExists"
	ConditionDirectoryNotEmpty             = "DirectoryNotEmpty"
	ConditionMissingRequiredQueryParameter = "MissingRequiredQueryParameter"
	ConditionInvalidQueryParameterValue    = "InvalidQueryParameterValue"
	ConditionServerBusy                    = "ServerBusy"
)

// StorageError is the typed failure returned by Emulator operations for
// client-caused conditions. Infrastructure failures (I/O errors and the
// like) are returned as plain wrapped errors instead.
type StorageError struct {
	Condition string
	Message   string
}

func (e *StorageError) Error() string {
	return e.Condition + ": " + e.Message
}

// AsStorageError unwraps err to a *StorageError if one is present.
func AsStorageError(err error) (*StorageError, bool) {
	var se *StorageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// ErrPathEscapesRoot reports that a resolved path lies outside the emulator
// root. It never results from ordinary client input; seeing it means the
// tree under the root was tampered with, for example by a manually planted
// symlink, and the operation was aborted before touching anything outside.
var ErrPathEscapesRoot = errors.New("path escapes emulator root")

func errInvalidResourceName() *StorageError {
	return &StorageError{
		Condition: ConditionInvalidResourceName,
		Message:   "The specified resource name contains invalid characters",
	}
}

func errFilesystemNotFound(name string) *StorageError {
	return &StorageError{
		Condition: ConditionFilesystemNotFound,
		Message:   fmt.Sprintf("Filesystem with name %s does not exist", name),
	}
}

func errFilesystemAlreadyExists(name string) *StorageError {
	return &StorageError{
		Condition: ConditionFilesystemAlreadyExists,
		Message:   fmt.Sprintf("Filesystem with name %s already exists", name),
	}
}

func errResourceNotFound() *StorageError {
	return &StorageError{
		Condition: ConditionResourceNotFound,
		Message:   "The specified resource does not exist",
	}
}

func errPathNotFound() *StorageError {
	return &StorageError{
		Condition: ConditionPathNotFound,
		Message:   "The specified path does not exist",
	}
}

func errPathAlreadyExists() *StorageError {
	return &StorageError{
		Condition: ConditionPathAlreadyExists,
		Message:   "The specified path already exists",
	}
}

func errDirectoryNotEmpty() *StorageError {
	return &StorageError{
		Condition: ConditionDirectoryNotEmpty,
		Message:   "The recursive query parameter value must be true to delete a non-empty directory",
	}
}
