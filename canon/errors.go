package canon

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
type Kind string

const (
	// KindUnsupportedValue covers payloads that have no canonical form:
	// floats, foreign types, invalid UTF-8, duplicate keys.
	KindUnsupportedValue Kind = "UnsupportedValue"
	// KindSyntax covers JSON input that cannot be tokenized.
	KindSyntax Kind = "Syntax"
)

// Stable rule identifiers.
const (
	RuleFloat        = "CANON-VAL-001"
	RuleType         = "CANON-VAL-002"
	RuleUTF8         = "CANON-VAL-003"
	RuleNil          = "CANON-VAL-004"
	RuleDuplicateKey = "CANON-VAL-005"
	RuleKeyType      = "CANON-VAL-006"
	RuleMalformed    = "CANON-SYN-001"
	RuleTrailingData = "CANON-SYN-002"
)

var (
	// ErrUnsupportedValue matches every *Error: input that cannot be parsed
	// has no canonical form either.
	ErrUnsupportedValue = errors.New("canon: unsupported value")
	// ErrSyntax matches every *Error of KindSyntax.
	ErrSyntax = errors.New("canon: malformed input")
)

// Error is the structured error returned by this package.
//
// Path locates the offending node ("$" is the root, "$.a[2]" is the third
// element of member "a"). Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path == "" {
		return "canon: " + e.Message
	}
	return "canon: " + e.Path + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrUnsupportedValue:
		return true
	case ErrSyntax:
		return e.Kind == KindSyntax
	}
	return false
}

func unsupported(ruleID, path, msg string) error {
	return &Error{Kind: KindUnsupportedValue, RuleID: ruleID, Path: path, Message: msg}
}

func syntaxError(ruleID, msg string, cause error) error {
	return &Error{Kind: KindSyntax, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
