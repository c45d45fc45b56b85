package emulation

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// removeTree deletes dir and everything under it, depth first: files in a
// directory are removed, child directories are recursed into, then the
// directory itself is removed. Before touching a directory it re-verifies
// containment through ensureContained, so a symlink planted under the root
// cannot redirect the walk outside it. Symlink entries themselves are
// unlinked, never followed.
func (e *Emulator) removeTree(dir string) error {
	if err := e.ensureContained(dir); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		target := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := e.removeTree(target); err != nil {
				return err
			}
			continue
		}
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("remove %s: %w", target, err)
		}
	}

	if err := os.Remove(dir); err != nil {
		return fmt.Errorf("remove directory %s: %w", dir, err)
	}
	return nil
}

// listTree collects a PathEntry for every child of dir, appending each
// directory's entry before its own children when recursive is set. Names
// are slash separated and relative to the listing origin; base carries the
// prefix accumulated so far.
func (e *Emulator) listTree(dir string, base string, recursive bool) ([]PathEntry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	entries := make([]PathEntry, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		info, err := dirEntry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", dirEntry.Name(), err)
		}

		name := path.Join(base, dirEntry.Name())
		entry := PathEntry{
			Name:         name,
			IsDirectory:  dirEntry.IsDir(),
			CreationTime: Timestamp{info.ModTime().UTC()},
			LastModified: Timestamp{info.ModTime().UTC()},
		}
		if !dirEntry.IsDir() {
			entry.ContentLength = info.Size()
		}
		entries = append(entries, entry)

		if recursive && dirEntry.IsDir() {
			children, err := e.listTree(filepath.Join(dir, dirEntry.Name()), name, recursive)
			if err != nil {
				return nil, err
			}
			entries = append(entries, children...)
		}
	}
	return entries, nil
}
