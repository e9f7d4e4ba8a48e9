// Package responder implements the auto-response engine: an ordered
// registry of rules, each pairing a trigger with a response. The first
// enabled rule whose trigger matches an inbound message wins; at most one
// reply is ever sent per message.
package responder

import (
	"fmt"
	"regexp"
	"strings"
)

// TriggerKind tags the trigger variant.
type TriggerKind string

const (
	// TriggerLiteral matches by case-insensitive substring containment.
	TriggerLiteral TriggerKind = "literal"

	// TriggerPattern matches by compiled regular expression.
	TriggerPattern TriggerKind = "pattern"

	// TriggerPredicate matches by calling a caller-supplied function.
	TriggerPredicate TriggerKind = "predicate"
)

// Trigger is a tagged variant: exactly one of the payload fields is set,
// according to Kind.
type Trigger struct {
	Kind      TriggerKind
	literal   string
	pattern   *regexp.Regexp
	predicate func(body string) bool
}

// NewLiteralTrigger matches message bodies containing text,
// case-insensitively.
func NewLiteralTrigger(text string) Trigger {
	return Trigger{Kind: TriggerLiteral, literal: strings.ToLower(text)}
}

// NewPatternTrigger matches message bodies against re.
func NewPatternTrigger(re *regexp.Regexp) Trigger {
	return Trigger{Kind: TriggerPattern, pattern: re}
}

// NewPredicateTrigger matches when fn returns true for the prepared
// (lower-cased, trimmed) message body.
func NewPredicateTrigger(fn func(body string) bool) Trigger {
	return Trigger{Kind: TriggerPredicate, predicate: fn}
}

// valid reports whether the trigger is one of the supported kinds with
// its payload present.
func (t Trigger) valid() bool {
	switch t.Kind {
	case TriggerLiteral:
		return t.literal != ""
	case TriggerPattern:
		return t.pattern != nil
	case TriggerPredicate:
		return t.predicate != nil
	}
	return false
}

// matches evaluates the trigger against a prepared body. One evaluation
// path per tag; the caller contains panics from predicates and patterns.
func (t Trigger) matches(body string) bool {
	switch t.Kind {
	case TriggerLiteral:
		return strings.Contains(body, t.literal)
	case TriggerPattern:
		return t.pattern.MatchString(body)
	case TriggerPredicate:
		return t.predicate(body)
	}
	return false
}

// Display renders the trigger for listings; the raw compiled form is
// never exposed.
func (t Trigger) Display() string {
	switch t.Kind {
	case TriggerLiteral:
		return fmt.Sprintf("text:%q", t.literal)
	case TriggerPattern:
		return "pattern:/" + t.pattern.String() + "/"
	case TriggerPredicate:
		return "predicate:<function>"
	}
	return "invalid"
}
