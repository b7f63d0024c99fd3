package shopstore

import (
	"fmt"
	"regexp"
	"strings"
)

// ErrorClass buckets store errors into the repair strategies the upsert
// ladder knows how to apply.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassUndefinedColumn
	ClassNotNullViolation
	ClassUniqueViolation
	ClassNoConflictTarget
	ClassTypeMismatch
	ClassMissingTable
	ClassUnauthorized
)

// SQLSTATE codes surfaced by the store's REST layer.
const (
	codeUndefinedColumn  = "42703"
	codeNotNullViolation = "23502"
	codeUniqueViolation  = "23505"
	codeNoConflictTarget = "42P10"
	codeTypeMismatch     = "22P02"
	codeMissingTable     = "42P01"
)

// StoreError is the structured error body returned by the store on 4xx
// responses, plus the HTTP status it arrived with.
type StoreError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error %s (http %d): %s", e.Code, e.Status, e.Message)
}

// Classify maps a store error to a repair strategy.
func Classify(e *StoreError) ErrorClass {
	if e == nil {
		return ClassUnknown
	}
	switch e.Code {
	case codeUndefinedColumn:
		return ClassUndefinedColumn
	case codeNotNullViolation:
		return ClassNotNullViolation
	case codeUniqueViolation:
		return ClassUniqueViolation
	case codeNoConflictTarget:
		return ClassNoConflictTarget
	case codeTypeMismatch:
		return ClassTypeMismatch
	case codeMissingTable:
		return ClassMissingTable
	}
	switch e.Status {
	case 401, 403:
		return ClassUnauthorized
	case 409:
		// Conflict without a SQLSTATE still means a row already exists.
		return ClassUniqueViolation
	}
	// Some store versions omit the code but keep the canonical message text.
	msg := strings.ToLower(e.Message)
	switch {
	case strings.Contains(msg, "does not exist") && strings.Contains(msg, "column"):
		return ClassUndefinedColumn
	case strings.Contains(msg, "null value in column"):
		return ClassNotNullViolation
	case strings.Contains(msg, "duplicate key value"):
		return ClassUniqueViolation
	case strings.Contains(msg, "no unique or exclusion constraint"):
		return ClassNoConflictTarget
	case strings.Contains(msg, "invalid input syntax"):
		return ClassTypeMismatch
	}
	return ClassUnknown
}

// Fatal reports whether no repair strategy can help and the whole upsert
// should stop immediately.
func Fatal(class ErrorClass) bool {
	return class == ClassUnauthorized || class == ClassMissingTable
}

// Column-name extraction patterns, tried in order. The store reports the
// offending column only inside human-readable message/details text.
var columnPatterns = []*regexp.Regexp{
	regexp.MustCompile(`column "([A-Za-z0-9_]+)" of relation`),
	regexp.MustCompile(`null value in column "([A-Za-z0-9_]+)"`),
	regexp.MustCompile(`column (?:[A-Za-z0-9_]+\.)?"?([A-Za-z0-9_]+)"? does not exist`),
	regexp.MustCompile(`Could not find the '([A-Za-z0-9_]+)' column`),
	regexp.MustCompile(`invalid input syntax for type [A-Za-z0-9_]+ in column "([A-Za-z0-9_]+)"`),
}

// Column extracts the offending column name from the error text, or "" when
// the store did not name one (e.g. bare type-mismatch messages).
func (e *StoreError) Column() string {
	if e == nil {
		return ""
	}
	for _, text := range []string{e.Message, e.Details, e.Hint} {
		if text == "" {
			continue
		}
		for _, re := range columnPatterns {
			if m := re.FindStringSubmatch(text); m != nil {
				return m[1]
			}
		}
	}
	return ""
}
