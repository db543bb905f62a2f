package utils

import (
	"fmt"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
)

// CategoryValidator accepts category keys, display names and known synonyms.
func CategoryValidator() func(string) error {
	return func(s string) error {
		if _, ok := constants.Canonicalize(s); ok {
			return nil
		}
		return fmt.Errorf("unknown category %q", s)
	}
}
