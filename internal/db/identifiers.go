package db

import (
	"fmt"
	"regexp"

	"github.com/lib/pq"
)

// identPattern matches identifiers we accept from the command line. Anything
// discovered from the catalogs is quoted regardless, this only guards the
// user-supplied table and column names.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_$]*$`)

// ValidateIdentifier rejects table/column names that are not plain
// PostgreSQL identifiers. Values are always bound as parameters; identifiers
// are the one thing that must be interpolated, so they are validated and
// quoted instead.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("empty identifier")
	}
	if len(name) > 63 {
		return fmt.Errorf("identifier %q exceeds 63 bytes", name)
	}
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// QuoteIdentifier returns the identifier quoted for safe interpolation into
// dynamically built SQL.
func QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}
