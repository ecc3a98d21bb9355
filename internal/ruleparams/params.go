// Package ruleparams validates the rule's configuration parameters into
// a typed, checked form. Validation runs once per invocation, before any
// collaborator is contacted; nothing downstream ever sees an unchecked
// parameter.
package ruleparams

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/models"
)

// ErrInvalidConfiguration marks a customer-facing configuration error in
// policyArns or exceptionList. It aborts the invocation before any
// external call is made.
var ErrInvalidConfiguration = errors.New("invalid rule configuration")

// policyARNPattern is the grammar for a managed policy ARN: partition,
// account (12-digit number or the literal "aws" for AWS-managed
// policies), and a policy/-prefixed path and name.
var policyARNPattern = regexp.MustCompile(`^arn:aws[a-zA-Z-]*:iam::(?:aws|\d{12}):policy/[a-zA-Z0-9_/-]+$`)

// entityNamePattern is the grammar for IAM entity names in the exception
// list.
var entityNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ExceptionList holds the principal names exempted from the rule, split
// by kind. Matching is exact and case sensitive.
type ExceptionList struct {
	Users []string
	Roles []string
}

// Contains reports whether name appears in the exception set matching the
// given principal kind.
func (e ExceptionList) Contains(kind models.PrincipalKind, name string) bool {
	var names []string
	switch kind {
	case models.KindUser:
		names = e.Users
	case models.KindRole:
		names = e.Roles
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// RuleParameters is the validated rule configuration. Immutable once
// returned by Parse.
type RuleParameters struct {
	// PolicyARNs is the ordered, non-empty list of required managed policy
	// ARNs. Order and multiplicity are preserved exactly as configured.
	PolicyARNs []string

	// Exceptions lists the users and roles exempt from the requirement.
	Exceptions ExceptionList
}

// Parse validates the raw key/value rule parameters. Recognized keys are
// policyArns (required, comma-separated ARNs) and exceptionList
// (optional, free text containing users:[...] and/or roles:[...]).
// Any malformed ARN or exception name fails the whole validation with
// ErrInvalidConfiguration.
func Parse(raw map[string]string) (*RuleParameters, error) {
	arns, err := parsePolicyARNs(raw["policyArns"])
	if err != nil {
		return nil, err
	}

	exceptions, err := parseExceptionList(raw["exceptionList"])
	if err != nil {
		return nil, err
	}

	return &RuleParameters{PolicyARNs: arns, Exceptions: exceptions}, nil
}

// parsePolicyARNs splits and validates the comma-separated policy ARN
// list. An absent or empty value fails: a requirement with nothing to
// require is a configuration error, not an always-compliant rule.
func parsePolicyARNs(value string) ([]string, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("%w: policyArns is required", ErrInvalidConfiguration)
	}
	tokens := strings.Split(value, ",")
	arns := make([]string, 0, len(tokens))
	for _, token := range tokens {
		arn := strings.TrimSpace(token)
		if !policyARNPattern.MatchString(arn) {
			return nil, fmt.Errorf("%w: invalid policy ARN %q in policyArns", ErrInvalidConfiguration, arn)
		}
		arns = append(arns, arn)
	}
	return arns, nil
}

// parseExceptionList extracts the users:[...] and roles:[...] sub-lists
// from the free-text exceptionList value. Each keyword is searched for
// independently; a missing keyword yields an empty list, not an error.
func parseExceptionList(value string) (ExceptionList, error) {
	users, err := extractEntities("users", value)
	if err != nil {
		return ExceptionList{}, err
	}
	roles, err := extractEntities("roles", value)
	if err != nil {
		return ExceptionList{}, err
	}
	return ExceptionList{Users: users, Roles: roles}, nil
}

// extractEntities finds the bracketed name list for one entity keyword
// and validates every name against the entity name grammar. The capture
// is deliberately permissive: anything up to the closing bracket is
// extracted so that a name with a disallowed character fails the grammar
// check instead of silently failing to match.
func extractEntities(keyword, value string) ([]string, error) {
	pattern := regexp.MustCompile(keyword + `:\s?\[([^\]]+)\]`)
	match := pattern.FindStringSubmatch(value)
	if match == nil {
		return nil, nil
	}

	var names []string
	for _, name := range strings.Split(strings.ReplaceAll(match[1], " ", ""), ",") {
		if !entityNamePattern.MatchString(name) {
			return nil, fmt.Errorf("%w: invalid entity name %q in exceptionList %s", ErrInvalidConfiguration, name, keyword)
		}
		names = append(names, name)
	}
	return names, nil
}
