// Package validation holds the pure field validators applied by the
// collection form before persistence. Validation failures are values, never
// panics; the local store itself accepts any record shape.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Result reports a single-check outcome with an optional user-facing message.
type Result struct {
	Valid   bool
	Message string
}

func ok() Result             { return Result{Valid: true} }
func fail(msg string) Result { return Result{Valid: false, Message: msg} }

// Coordinates checks optional latitude/longitude values. Nil values never
// fail; a form may legitimately omit location. The first violated bound wins.
func Coordinates(lat, lon *float64) Result {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return fail("Latitude must be between -90 and 90")
	}
	if lon != nil && (*lon < -180 || *lon > 180) {
		return fail("Longitude must be between -180 and 180")
	}
	return ok()
}

// ValidUnits is the closed allow-list of measurement units.
var ValidUnits = []string{"m", "cm", "mm", "km", "ft", "in", "kg", "g", "lb"}

// Units checks a measurement value and its unit. The unit check is reported
// before the sign check.
func Units(value float64, unit string) Result {
	allowed := false
	for _, u := range ValidUnits {
		if unit == u {
			allowed = true
			break
		}
	}
	if !allowed {
		return fail(fmt.Sprintf("Invalid unit: %s. Valid units: %s", unit, strings.Join(ValidUnits, ", ")))
	}
	if value < 0 {
		return fail("Measurement cannot be negative")
	}
	return ok()
}

// RuleKind selects the behavior of a generic validation rule.
type RuleKind string

// The closed set of rule kinds supported by Field.
const (
	RuleRequired RuleKind = "required"
	RuleRange    RuleKind = "range"
	RulePattern  RuleKind = "pattern"
	RuleCustom   RuleKind = "custom"
)

// Rule is one entry of a generic rule set evaluated against a field value.
type Rule struct {
	Kind    RuleKind
	Message string
	Min     *float64
	Max     *float64
	Pattern *regexp.Regexp
	Check   func(value any) bool
}

// FieldResult aggregates every failing rule message for a field.
type FieldResult struct {
	Valid  bool
	Errors []string
}

// Field evaluates all rules independently and collects every failing message;
// evaluation never short-circuits. Range rules only apply to numeric values
// and pattern rules only to strings, mirroring the form's loose input types.
func Field(value any, rules []Rule) FieldResult {
	var errs []string
	for _, rule := range rules {
		switch rule.Kind {
		case RuleRequired:
			if isEmpty(value) {
				errs = append(errs, rule.Message)
			}
		case RuleRange:
			if num, isNum := asNumber(value); isNum {
				if rule.Min != nil && num < *rule.Min {
					errs = append(errs, rule.Message)
				}
				if rule.Max != nil && num > *rule.Max {
					errs = append(errs, rule.Message)
				}
			}
		case RulePattern:
			if s, isStr := value.(string); isStr && rule.Pattern != nil && !rule.Pattern.MatchString(s) {
				errs = append(errs, rule.Message)
			}
		case RuleCustom:
			if rule.Check != nil && !rule.Check(value) {
				errs = append(errs, rule.Message)
			}
		}
	}
	return FieldResult{Valid: len(errs) == 0, Errors: errs}
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, isStr := value.(string); isStr {
		return s == ""
	}
	return false
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// AutoCorrect normalizes common data entry errors in a raw form draft:
// leading/trailing whitespace is trimmed from every string value, and
// latitude/longitude strings have a decimal comma replaced by a decimal point
// before re-parsing as a float. Values that still fail to parse become NaN
// and are passed through; rejecting NaN coordinates is the caller's decision.
func AutoCorrect(fields map[string]any) map[string]any {
	corrected := make(map[string]any, len(fields))
	for key, value := range fields {
		if s, isStr := value.(string); isStr {
			corrected[key] = strings.TrimSpace(s)
		} else {
			corrected[key] = value
		}
	}
	for _, key := range []string{"latitude", "longitude"} {
		value, present := corrected[key]
		if !present || value == nil {
			continue
		}
		s, isStr := value.(string)
		if !isStr || s == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
		if err != nil {
			parsed = math.NaN()
		}
		corrected[key] = parsed
	}
	return corrected
}
