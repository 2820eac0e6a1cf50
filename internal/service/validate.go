package service

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sakif/analysis-runner/internal/apperror"
)

// Validation limits shared by the analysis and dataset services.
const (
	MaxCodeLength     = 100000 // ~100KB of code
	MaxFilesPerRun    = 20
	MaxFileNameLength = 255
	MaxFolderNameLen  = 100
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFileName replaces every character outside [a-zA-Z0-9._-] with an
// underscore, the way uploads are normalised before they are stored.
func SanitizeFileName(name string) string {
	return unsafeNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
}

// ValidateFileName checks that name can be used as a plain file name inside
// an environment's working directory.
func ValidateFileName(field, name string) error {
	switch {
	case name == "":
		return apperror.ValidationFailed(field, "file name is required")
	case len(name) > MaxFileNameLength:
		return apperror.ValidationFailed(field,
			fmt.Sprintf("file name must be %d bytes or less", MaxFileNameLength))
	case !utf8.ValidString(name):
		return apperror.ValidationFailed(field, "file name must be valid UTF-8")
	case name == "." || name == "..":
		return apperror.ValidationFailed(field, fmt.Sprintf("invalid file name %q", name))
	case strings.ContainsAny(name, "/\\\x00"):
		return apperror.ValidationFailed(field,
			fmt.Sprintf("file name %q must not contain path separators", name))
	}
	return nil
}
