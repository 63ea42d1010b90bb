// Package validation provides custom validation rules for topologies, aliases and
// configuration values.
package validation

import (
	"net/url"
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/topogate/internal/errors"
)

var (
	// topologyNameRegex matches names usable both as a file base name and as a URL segment.
	topologyNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

	// aliasNameRegex matches gateway-wide and topology-scoped ("topology/alias") aliases.
	aliasNameRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*(/[A-Za-z0-9_][A-Za-z0-9_.-]*)?$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// TopologyName validates a topology name. Dots are excluded because they separate
// the name from the version token in deployment directory names.
var TopologyName = validation.NewStringRuleWithError(
	func(s string) bool {
		return topologyNameRegex.MatchString(s)
	},
	validation.NewError(
		"validation_topology_name",
		"must start with a letter or digit and contain only letters, digits, '-' or '_'",
	),
)

// AliasName validates an alias name.
var AliasName = validation.NewStringRuleWithError(
	func(s string) bool {
		return len(s) <= 255 && aliasNameRegex.MatchString(s)
	},
	validation.NewError("validation_alias_name", "must be a valid alias name"),
)

// AbsoluteURL validates an absolute http or https URL with a host.
var AbsoluteURL = validation.NewStringRuleWithError(
	func(s string) bool {
		u, err := url.Parse(s)
		if err != nil {
			return false
		}
		return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	},
	validation.NewError("validation_absolute_url", "must be an absolute http or https URL"),
)

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)
