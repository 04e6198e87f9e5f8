// Package errors provides a small categorized-error type so callers can
// branch on failure class (transient, client input, invariant, fatal)
// without string matching, and so the IPC layer can map a category to a
// wire error code in exactly one place.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Category classifies a failure the way spec.md §7 taxonomizes them.
type Category string

const (
	// CategoryTransient covers factory timeouts, link-creation races, and
	// graph objects that have gone missing — expected to self-heal on the
	// next reconciliation.
	CategoryTransient Category = "transient"
	// CategoryClientInput covers bad IPC requests that are malformed
	// rather than missing: an unknown mix, an empty required field, an
	// unsupported request type.
	CategoryClientInput Category = "client-input"
	// CategoryNotFound covers a well-formed IPC request naming a channel,
	// profile, or output device that does not exist (spec.md §6/§7),
	// distinct from CategoryClientInput so the IPC layer can map it to
	// 404 rather than 400.
	CategoryNotFound Category = "not-found"
	// CategoryInvariant covers internal contract violations: a closed
	// request channel, a persistent-store write failure.
	CategoryInvariant Category = "invariant"
	// CategoryFatal covers startup failures the daemon cannot recover
	// from, such as failing to connect to the audio server.
	CategoryFatal Category = "fatal"
)

// Enhanced wraps an error with a component name and category.
type Enhanced struct {
	component string
	category  Category
	cause     error
	message   string
}

func (e *Enhanced) Error() string {
	if e.component != "" {
		return fmt.Sprintf("%s: %s", e.component, e.message)
	}
	return e.message
}

// Unwrap allows errors.Is / errors.As to see through to the cause.
func (e *Enhanced) Unwrap() error { return e.cause }

// Component returns the component name that raised the error.
func (e *Enhanced) Component() string { return e.component }

// Category returns the error's category.
func (e *Enhanced) Category() Category { return e.category }

// Builder constructs an Enhanced error fluently, mirroring the corpus'
// errors.Newf(...).Component(...).Category(...).Build() convention.
type Builder struct {
	err *Enhanced
}

// Newf starts a builder from a formatted message.
func Newf(format string, args ...any) *Builder {
	return &Builder{err: &Enhanced{message: fmt.Sprintf(format, args...), category: CategoryInvariant}}
}

// Wrap starts a builder from an existing error, preserving it as the cause.
func Wrap(err error) *Builder {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Builder{err: &Enhanced{message: msg, cause: err, category: CategoryInvariant}}
}

// Component sets the component name.
func (b *Builder) Component(component string) *Builder {
	b.err.component = component
	return b
}

// Category sets the error category.
func (b *Builder) Category(category Category) *Builder {
	b.err.category = category
	return b
}

// Build returns the finished error.
func (b *Builder) Build() *Enhanced {
	return b.err
}

// IsCategory reports whether err (or anything it wraps) is an Enhanced
// error of the given category.
func IsCategory(err error, category Category) bool {
	var ee *Enhanced
	if stderrors.As(err, &ee) {
		return ee.category == category
	}
	return false
}

// CategoryOf returns the category of err, or CategoryInvariant if err is
// not an Enhanced error — callers that don't know better should treat an
// unclassified error as an internal problem rather than the caller's fault.
func CategoryOf(err error) Category {
	var ee *Enhanced
	if stderrors.As(err, &ee) {
		return ee.category
	}
	return CategoryInvariant
}
