// Package horosafe provides the guards used when unpacking untrusted
// archives and reading untrusted identifiers: path traversal checks, bounded
// reads and identifier validation.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when an archive entry name escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrTooLarge is returned by LimitedReadAll when the limit is exceeded.
var ErrTooLarge = errors.New("horosafe: content exceeds size limit")

// SafePath joins base and an archive entry name and verifies the result
// stays under base. Entry names use forward slashes; backslashes are treated
// as separators too since some archivers on Windows emit them.
// Returns the cleaned path or ErrPathTraversal.
func SafePath(base, entry string) (string, error) {
	if entry == "" || strings.ContainsRune(entry, 0) {
		return "", ErrPathTraversal
	}
	entry = strings.ReplaceAll(entry, `\`, "/")
	if strings.HasPrefix(entry, "/") || filepath.VolumeName(entry) != "" {
		return "", ErrPathTraversal
	}
	for _, seg := range strings.Split(entry, "/") {
		if seg == ".." {
			return "", ErrPathTraversal
		}
	}

	cleanBase := filepath.Clean(base)
	cleaned := filepath.Join(cleanBase, filepath.FromSlash(entry))
	if !strings.HasPrefix(cleaned, cleanBase+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// ValidateIdentifier rejects identifiers that contain characters unsuitable
// for file names or URL path segments. Allows alphanumeric, underscore,
// hyphen, and dot.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("horosafe: identifier must not be empty")
	}
	if len(s) > 256 {
		return fmt.Errorf("horosafe: identifier too long (max 256)")
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("horosafe: invalid character %q in identifier", r)
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r. Returns an error wrapping
// ErrTooLarge if the limit is exceeded.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
