package emulation

// Resource names may contain ASCII letters, digits, underscores, and
// hyphens. File names additionally allow dots so extensions work.
func validNameByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-':
		return true
	}
	return false
}

// validSegment reports whether a single path segment satisfies the naming
// policy. Empty segments are rejected: the routing layer normalizes away
// doubled and trailing slashes, so an empty segment can only come from a
// caller bypassing it. Segments made up entirely of dots ("." and "..")
// are path syntax, not names, and are rejected even where dots are allowed.
func validSegment(segment string, allowDots bool) bool {
	if segment == "" {
		return false
	}
	dotsOnly := true
	for i := 0; i < len(segment); i++ {
		if validNameByte(segment[i]) {
			dotsOnly = false
			continue
		}
		if allowDots && segment[i] == '.' {
			continue
		}
		return false
	}
	return !dotsOnly
}

// validateFilesystemName checks a container name, which is a single segment
// with no dots allowed.
func validateFilesystemName(name string) error {
	if !validSegment(name, false) {
		return errInvalidResourceName()
	}
	return nil
}

// validateDirectoryPath checks every segment of a slash-separated directory
// path against the directory naming policy.
func validateDirectoryPath(relPath string) error {
	for _, segment := range splitPath(relPath) {
		if !validSegment(segment, false) {
			return errInvalidResourceName()
		}
	}
	return nil
}

// validateResourcePath checks every segment of a slash-separated resource
// path. Resources may be files, so dots are allowed in every segment; this
// matches the file-creation policy, where intermediate segments share the
// file character set.
func validateResourcePath(relPath string) error {
	for _, segment := range splitPath(relPath) {
		if !validSegment(segment, true) {
			return errInvalidResourceName()
		}
	}
	return nil
}
