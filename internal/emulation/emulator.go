package emulation

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// Emulator implements Data Lake Gen2 storage semantics on top of a local
// directory tree: each container ("filesystem") is an immediate
// subdirectory of the root, resources are ordinary files and directories
// under it, and container metadata lives in a single sidecar record file.
type Emulator struct {
	root    string
	props   *propertiesStore
	appends *appendBuffer
}

// PathEntry describes one resource in a listing or a properties lookup.
// Name is slash separated and relative to the container, with no leading
// separator.
type PathEntry struct {
	Name          string
	IsDirectory   bool
	ContentLength int64
	CreationTime  Timestamp
	LastModified  Timestamp
}

// FilesystemEntry pairs a container name with its stored properties for
// container listings.
type FilesystemEntry struct {
	Name       string
	Properties FilesystemProperties
}

// NewEmulator prepares the directory tree rooted at rootDir, creating it and
// an empty properties record file if needed.
func NewEmulator(rootDir string) (*Emulator, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root directory: %w", err)
	}

	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("root directory %s already exists as a file", abs)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create root directory: %w", err)
	}

	// Containment checks compare canonical paths, so resolve the root
	// through any symlinks once up front.
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve root directory: %w", err)
	}

	props := newPropertiesStore(filepath.Join(root, PropertiesFileName))
	if err := props.init(); err != nil {
		return nil, err
	}

	return &Emulator{
		root:    root,
		props:   props,
		appends: newAppendBuffer(),
	}, nil
}

// Root returns the canonical directory all containers live under.
func (e *Emulator) Root() string {
	return e.root
}

// requireFilesystem validates a container name and resolves it to its
// directory, failing with FilesystemNotFound if the directory is absent.
func (e *Emulator) requireFilesystem(name string) (string, error) {
	if err := validateFilesystemName(name); err != nil {
		return "", err
	}
	dir, err := e.containerPath(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !info.IsDir()) {
		return "", errFilesystemNotFound(name)
	}
	if err != nil {
		return "", fmt.Errorf("stat filesystem %s: %w", name, err)
	}
	return dir, nil
}

// CreateFilesystem creates the container directory and its properties
// record. It fails with FilesystemAlreadyExists when the directory is
// already present; it never resets an existing container.
func (e *Emulator) CreateFilesystem(name string) error {
	if err := validateFilesystemName(name); err != nil {
		return err
	}
	dir, err := e.containerPath(name)
	if err != nil {
		return err
	}

	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return errFilesystemAlreadyExists(name)
	}

	if err := os.Mkdir(dir, 0o755); err != nil {
		return fmt.Errorf("create filesystem directory: %w", err)
	}
	if _, err := e.props.create(name); err != nil {
		return err
	}
	return nil
}

// DeleteFilesystem removes the container's properties record and then its
// whole directory tree, in that order. A directory left behind by a crash
// between the two steps has no record and is invisible to listings.
func (e *Emulator) DeleteFilesystem(name string) error {
	dir, err := e.requireFilesystem(name)
	if err != nil {
		return err
	}

	if err := e.props.remove(name); err != nil {
		return err
	}
	return e.removeTree(dir)
}

// GetFilesystemProperties returns the stored record for the container.
func (e *Emulator) GetFilesystemProperties(name string) (FilesystemProperties, error) {
	if _, err := e.requireFilesystem(name); err != nil {
		return FilesystemProperties{}, err
	}

	rec, ok, err := e.props.get(name)
	if err != nil {
		return FilesystemProperties{}, err
	}
	if !ok {
		return FilesystemProperties{}, errFilesystemNotFound(name)
	}
	return rec, nil
}

// SetFilesystemProperties merges metadata into the container's record,
// keeping existing keys that are not overwritten, and bumps its
// last-modified time.
func (e *Emulator) SetFilesystemProperties(name string, metadata map[string]string) (FilesystemProperties, error) {
	if _, err := e.requireFilesystem(name); err != nil {
		return FilesystemProperties{}, err
	}
	return e.props.merge(name, metadata)
}

// ListFilesystems returns every container that has both a directory and a
// properties record, in directory order. Directories without a record are
// skipped rather than reported; a half-created container stays invisible.
func (e *Emulator) ListFilesystems() ([]FilesystemEntry, error) {
	dirEntries, err := os.ReadDir(e.root)
	if err != nil {
		return nil, fmt.Errorf("read root directory: %w", err)
	}

	filesystems := make([]FilesystemEntry, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		if !dirEntry.IsDir() {
			continue
		}
		rec, ok, err := e.props.get(dirEntry.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		filesystems = append(filesystems, FilesystemEntry{Name: dirEntry.Name(), Properties: rec})
	}
	return filesystems, nil
}

// CreateDirectory creates the directory and any missing intermediate
// directories under the container. It fails with PathAlreadyExists when
// anything already occupies the target path.
func (e *Emulator) CreateDirectory(filesystem string, directory string) error {
	if err := validateDirectoryPath(directory); err != nil {
		return err
	}
	if _, err := e.requireFilesystem(filesystem); err != nil {
		return err
	}

	target, err := e.resourcePath(filesystem, directory)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(target); err == nil {
		return errPathAlreadyExists()
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return nil
}

// CreateFile creates an empty file, truncating any existing content; the
// real service's create always succeeds on an existing file and resets it.
// The immediate parent directory must already exist (PathNotFound
// otherwise), and a directory occupying the target fails with
// PathAlreadyExists.
func (e *Emulator) CreateFile(filesystem string, file string) error {
	if err := validateResourcePath(file); err != nil {
		return err
	}
	if _, err := e.requireFilesystem(filesystem); err != nil {
		return err
	}

	target, err := e.resourcePath(filesystem, file)
	if err != nil {
		return err
	}

	if info, err := os.Stat(filepath.Dir(target)); err != nil || !info.IsDir() {
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat parent directory: %w", err)
		}
		return errPathNotFound()
	}
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return errPathAlreadyExists()
	}

	if err := os.WriteFile(target, nil, 0o644); err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

// DeletePath removes a file unconditionally. For directories, recursive
// must be set unless the directory is already empty; a populated directory
// without it fails with DirectoryNotEmpty.
func (e *Emulator) DeletePath(filesystem string, relPath string, recursive bool) error {
	if err := validateResourcePath(relPath); err != nil {
		return err
	}
	if _, err := e.requireFilesystem(filesystem); err != nil {
		return err
	}

	target, err := e.resourcePath(filesystem, relPath)
	if err != nil {
		return err
	}

	info, err := os.Lstat(target)
	if errors.Is(err, os.ErrNotExist) {
		return errResourceNotFound()
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", relPath, err)
	}

	if !info.IsDir() {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("remove %s: %w", relPath, err)
		}
		return nil
	}

	if recursive {
		return e.removeTree(target)
	}

	children, err := os.ReadDir(target)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", relPath, err)
	}
	if len(children) > 0 {
		return errDirectoryNotEmpty()
	}
	if err := e.ensureContained(target); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		return fmt.Errorf("remove directory %s: %w", relPath, err)
	}
	return nil
}

// ReadPath returns the full contents of a file. Directories have no
// content and report ResourceNotFound. Unflushed appends are invisible
// here; only flushed bytes are ever read back.
func (e *Emulator) ReadPath(filesystem string, relPath string) ([]byte, error) {
	if err := validateResourcePath(relPath); err != nil {
		return nil, err
	}
	if _, err := e.requireFilesystem(filesystem); err != nil {
		return nil, err
	}

	target, err := e.resourcePath(filesystem, relPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(target)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return nil, errResourceNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", relPath, err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relPath, err)
	}
	return data, nil
}

// GetPathProperties describes a single resource.
func (e *Emulator) GetPathProperties(filesystem string, relPath string) (PathEntry, error) {
	if err := validateResourcePath(relPath); err != nil {
		return PathEntry{}, err
	}
	if _, err := e.requireFilesystem(filesystem); err != nil {
		return PathEntry{}, err
	}

	target, err := e.resourcePath(filesystem, relPath)
	if err != nil {
		return PathEntry{}, err
	}

	info, err := os.Stat(target)
	if errors.Is(err, os.ErrNotExist) {
		return PathEntry{}, errResourceNotFound()
	}
	if err != nil {
		return PathEntry{}, fmt.Errorf("stat %s: %w", relPath, err)
	}

	entry := PathEntry{
		Name:         path.Join(splitPath(relPath)...),
		IsDirectory:  info.IsDir(),
		CreationTime: Timestamp{info.ModTime().UTC()},
		LastModified: Timestamp{info.ModTime().UTC()},
	}
	if !info.IsDir() {
		entry.ContentLength = info.Size()
	}
	return entry, nil
}

// ListPaths lists the resources under directory (the container root when
// empty), descending into subdirectories when recursive is set. Entry
// names are relative to the container. Listing a directory that does not
// exist yields an empty result; absence below the container level is not
// distinguished from an empty directory.
func (e *Emulator) ListPaths(filesystem string, directory string, recursive bool) ([]PathEntry, error) {
	if directory != "" {
		if err := validateDirectoryPath(directory); err != nil {
			return nil, err
		}
	}
	if _, err := e.requireFilesystem(filesystem); err != nil {
		return nil, err
	}

	start, err := e.resourcePath(filesystem, directory)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(start)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !info.IsDir()) {
		return []PathEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", directory, err)
	}

	base := path.Join(splitPath(directory)...)
	return e.listTree(start, base, recursive)
}

// AppendPath buffers payload for the file without touching it; the data
// becomes durable and readable only after FlushPath. The offset is purely
// a sort key for flush ordering. Gapped or out-of-order offsets are
// reordered, never sparse-filled. Keep a single writer per path between an
// append and its flush; the buffer does not arbitrate interleaved writers.
func (e *Emulator) AppendPath(filesystem string, relPath string, payload []byte, offset int64) error {
	target, err := e.requireFile(filesystem, relPath)
	if err != nil {
		return err
	}
	e.appends.add(target, payload, offset)
	return nil
}

// FlushPath commits the buffered appends for the file in ascending offset
// order and clears the buffer. Flushing with nothing pending is a no-op
// success.
func (e *Emulator) FlushPath(filesystem string, relPath string) error {
	target, err := e.requireFile(filesystem, relPath)
	if err != nil {
		return err
	}

	entries := e.appends.take(target)
	if len(entries) == 0 {
		return nil
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", relPath, err)
	}
	for _, entry := range entries {
		if _, err := f.Write(entry.payload); err != nil {
			_ = f.Close()
			return fmt.Errorf("append to %s: %w", relPath, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", relPath, err)
	}
	return nil
}

// requireFile validates and resolves a path that must name an existing
// regular file, as the append and flush operations demand.
func (e *Emulator) requireFile(filesystem string, relPath string) (string, error) {
	if err := validateResourcePath(relPath); err != nil {
		return "", err
	}
	if _, err := e.requireFilesystem(filesystem); err != nil {
		return "", err
	}

	target, err := e.resourcePath(filesystem, relPath)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(target)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return "", errResourceNotFound()
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", relPath, err)
	}
	return target, nil
}
