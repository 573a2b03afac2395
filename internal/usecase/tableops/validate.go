package tableops

import (
	"unicode"

	"github.com/kailas-cloud/tabledex/internal/envelope"
)

// ValidateTableName rejects names that are not plain identifiers. Runs
// before any backend call so a bad name never reaches the wire.
func ValidateTableName(name string) error {
	if name == "" {
		return envelope.Validation("Table name cannot be empty", nil)
	}
	if !isIdentifier(name) {
		return envelope.Validation("Invalid table name", map[string]any{
			"details": "Table name must be a valid identifier (letters, numbers, underscore)",
		})
	}
	return nil
}

func isIdentifier(s string) bool {
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}
