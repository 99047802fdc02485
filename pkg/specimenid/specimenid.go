// Package specimenid generates and validates human-readable specimen
// identifiers. Two formats exist as named variants: the date-random family
// (PREFIX-YYYYMMDD-XXXX) used for primary ids, and the sequential family
// (PREFIX-NNNNNN) used when a caller manages its own counter.
package specimenid

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPrefix is used when callers do not supply their own.
const DefaultPrefix = "SPEC"

var (
	dateRandomPattern = regexp.MustCompile(`^[A-Z]+-\d{8}-[A-Z0-9]{4}$`)
	sequentialPattern = regexp.MustCompile(`^[A-Z]+-\d{6}$`)
)

// Generate produces an identifier like SPEC-20251201-A3F2: the current UTC
// calendar date plus a 4-character uppercase fragment of a fresh random UUID.
// Collisions are astronomically unlikely but possible; ids are not
// deduplicated against existing store contents, so inserts still guard the
// key space.
func Generate(prefix string) string {
	return generateAt(prefix, time.Now())
}

func generateAt(prefix string, now time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	dateStr := now.UTC().Format("20060102")
	randomPart := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("%s-%s-%s", prefix, dateStr, randomPart)
}

// GenerateSequential formats the next identifier in a caller-managed sequence,
// e.g. SPEC-000001. It is a pure formatting function; no counter state is
// persisted here.
func GenerateSequential(lastNumber int, prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s-%06d", prefix, lastNumber+1)
}

// Validate reports whether id matches the date-random format family.
// Sequential ids deliberately fail this check; use ValidateSequential.
func Validate(id string) bool {
	return dateRandomPattern.MatchString(id)
}

// ValidateSequential reports whether id matches the sequential format family.
func ValidateSequential(id string) bool {
	return sequentialPattern.MatchString(id)
}
