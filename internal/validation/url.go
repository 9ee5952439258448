package validation

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/conneroisu/tagfill/internal/errors"
)

// ValidateServiceURL validates the connection URL of an external service
// such as the template store or the message broker. The scheme must be one
// of schemes and the URL must name a host.
func ValidateServiceURL(rawURL string, schemes ...string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, "invalid URL")
	}

	if !slices.Contains(schemes, parsed.Scheme) {
		return errors.NewConfigError(
			errors.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid URL scheme %q (allowed: %s)", parsed.Scheme, strings.Join(schemes, ", ")),
		)
	}

	if strings.ContainsAny(rawURL, " \n\r") {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "URL contains whitespace")
	}

	if parsed.Host == "" {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "URL must have a valid hostname")
	}

	return nil
}
