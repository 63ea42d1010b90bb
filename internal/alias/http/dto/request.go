// Package dto provides data transfer objects for the alias admin API.
package dto

import (
	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/topogate/internal/validation"
)

// SetAliasRequest contains the value to store under an alias.
type SetAliasRequest struct {
	Value string `json:"value"`
}

// Validate checks if the set alias request is valid. Values are opaque; only
// presence is checked.
func (r *SetAliasRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Value,
			validation.Required,
			customValidation.NotBlank,
		),
	)
}
