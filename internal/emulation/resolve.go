package emulation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// splitPath breaks a slash-separated relative path into its segments. An
// empty path yields no segments, addressing the container root.
func splitPath(relPath string) []string {
	relPath = strings.Trim(relPath, "/")
	if relPath == "" {
		return nil
	}
	return strings.Split(relPath, "/")
}

// containerPath resolves a container name to its absolute directory under
// the emulator root and verifies containment.
func (e *Emulator) containerPath(name string) (string, error) {
	return e.resolve(name)
}

// resourcePath resolves (container, relative path) to an absolute local
// path under the emulator root and verifies containment.
func (e *Emulator) resourcePath(filesystem string, relPath string) (string, error) {
	parts := append([]string{filesystem}, splitPath(relPath)...)
	return e.resolve(parts...)
}

// resolve joins the given segments under the emulator root, canonicalizes
// the result, and checks that it still lies inside the root. The character
// policy already excludes separators and "..", so a failure here means the
// caller bypassed validation; it is reported as ErrPathEscapesRoot, never as
// a client-facing condition.
func (e *Emulator) resolve(segments ...string) (string, error) {
	resolved := filepath.Join(append([]string{e.root}, segments...)...)
	if !e.contains(resolved) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, resolved)
	}
	return resolved, nil
}

// contains reports whether abs (an absolute, cleaned path) is a strict
// descendant of the emulator root.
func (e *Emulator) contains(abs string) bool {
	return strings.HasPrefix(abs, e.root+string(filepath.Separator))
}

// ensureContained re-resolves an existing path through any symlinks and
// verifies the canonical result is still under the root. Deletions and
// recursive walks call this before mutating, so a symlink planted inside
// the tree cannot steer them outside it.
func (e *Emulator) ensureContained(path string) error {
	canonical, err := filepath.EvalSymlinks(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if canonical != e.root && !e.contains(canonical) {
		return fmt.Errorf("%w: %s resolves to %s", ErrPathEscapesRoot, path, canonical)
	}
	return nil
}
