package types

import (
	"strings"

	"github.com/domwxyz/aptr/pkg/errors"
)

// MaxNameLength is the longest package name aptr accepts. Real archive
// names stay well under this; anything longer is treated as hostile.
const MaxNameLength = 80

// ValidateName checks a package name against aptr's restrictive charset
// policy. Names become part of file paths and shell-level backend
// invocations, so validation is deliberately stricter than the archive's
// own naming rules: alphanumerics plus '+', '.', '_' and '-', no parent
// references, no separators, no leading/trailing/doubled hyphens.
//
// Every entry point that accepts a package name must call this before
// touching any state.
func ValidateName(name string) error {
	if name == "" {
		return errors.New(errors.ErrInvalidName, "package name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return errors.Newf(errors.ErrInvalidName,
			"package name exceeds %d characters", MaxNameLength)
	}
	for _, r := range name {
		if !isNameRune(r) {
			return errors.Newf(errors.ErrInvalidName,
				"package name contains invalid character %q", r)
		}
	}
	if strings.Contains(name, "..") {
		return errors.New(errors.ErrInvalidName,
			"package name cannot contain parent references")
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return errors.New(errors.ErrInvalidName,
			"package name cannot start or end with a hyphen")
	}
	if strings.Contains(name, "--") {
		return errors.New(errors.ErrInvalidName,
			"package name cannot contain doubled hyphens")
	}
	return nil
}

// SanitizeName derives the file-safe identifier used for pin file names.
// Characters outside the allowed set are stripped rather than escaped so
// the derived name is deterministic and cannot reintroduce separators.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isNameRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '+' || r == '.' || r == '_' || r == '-':
		return true
	}
	return false
}
