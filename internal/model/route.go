package model

// MatchType selects how a RouteRule's pattern is compared against an
// application identity.
type MatchType string

const (
	MatchExact  MatchType = "exact"
	MatchPrefix MatchType = "prefix"
	MatchRegex  MatchType = "regex"
)

// RouteRule maps application identities to a target channel (spec.md §3).
type RouteRule struct {
	Pattern  string
	Type     MatchType
	Channel  string
	Priority int

	// seq preserves insertion order for stable tie-breaking between rules
	// of equal priority; set by whoever constructs the rule set.
	Seq int
}
