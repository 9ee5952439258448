// Package validation checks paths, origins and identifiers that reach the
// filesystem or the network from configuration and requests.
package validation

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/conneroisu/tagfill/internal/errors"
)

// restrictedPaths are never scanned or read, whatever the configuration says.
var restrictedPaths = []string{
	"/etc/",
	"/proc/",
	"/sys/",
	"/dev/",
	"/boot/",
}

// ValidatePath validates a file path to prevent path traversal attacks
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.ErrInvalidPath("path cannot be empty")
	}

	cleanPath := filepath.ToSlash(filepath.Clean(path))
	for _, part := range strings.Split(cleanPath, "/") {
		if part == ".." {
			return errors.ErrPathTraversal(path)
		}
	}

	cleanPathLower := strings.ToLower(cleanPath)
	for _, restricted := range restrictedPaths {
		if strings.HasPrefix(cleanPathLower+"/", restricted) {
			return errors.NewSecurityError(
				errors.ErrCodeInvalidPath,
				"access to restricted path denied: "+path,
			)
		}
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\x00"}
	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return errors.NewSecurityError(
				errors.ErrCodeInvalidPath,
				fmt.Sprintf("path contains dangerous character %q: %s", char, path),
			)
		}
	}

	return nil
}

// ValidateFileExtension validates file extensions against an allowlist
func ValidateFileExtension(filename string, allowedExtensions []string) error {
	if filename == "" {
		return errors.ErrInvalidPath("filename cannot be empty")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidPath, "file must have an extension: "+filename)
	}

	for _, allowed := range allowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}

	return errors.NewValidationError(
		errors.ErrCodeInvalidPath,
		fmt.Sprintf("file extension %q is not allowed", ext),
	)
}

// ValidateOrigin validates a WebSocket origin against the allowed list.
// An entry matches either the full origin or its host.
func ValidateOrigin(origin string, allowedOrigins []string) error {
	if origin == "" {
		return errors.NewSecurityError(errors.ErrCodeValidationFailed, "origin header is required")
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSecurity, errors.ErrCodeValidationFailed, "invalid origin format")
	}

	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return errors.NewSecurityError(
			errors.ErrCodeValidationFailed,
			fmt.Sprintf("invalid origin scheme %q: only http and https are allowed", originURL.Scheme),
		)
	}

	for _, allowed := range allowedOrigins {
		if origin == allowed || originURL.Host == allowed {
			return nil
		}
	}

	return errors.NewSecurityError(
		errors.ErrCodeValidationFailed,
		fmt.Sprintf("origin %q is not in allowed origins list", origin),
	)
}

var templateIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)

// ValidateTemplateID checks that id is usable as a registry key, a URL path
// segment and a database key.
func ValidateTemplateID(id string) error {
	if len(id) > 128 || !templateIDPattern.MatchString(id) {
		return errors.NewValidationError(
			errors.ErrCodeValidationFailed,
			fmt.Sprintf("invalid template id %q", id),
		)
	}
	return nil
}
