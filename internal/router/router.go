// Package router maps an application identity to a target channel via
// ordered pattern rules (spec.md §3, §4.4), grounded on the corpus'
// mutex-guarded rule-scan in internal/conf's range filter.
package router

import (
	"regexp"
	"sort"
	"sync"

	cache "github.com/patrickmn/go-cache"
	"github.com/undertone-audio/undertone/internal/logging"
	"github.com/undertone-audio/undertone/internal/model"
)

// DefaultChannel is returned when no rule matches either the application
// name or its binary name.
const DefaultChannel = "system"

// Router evaluates a set of route rules against an application identity.
// Safe for concurrent use: rule-set replacement and lookups are both
// mutex-guarded.
type Router struct {
	mu    sync.RWMutex
	rules []model.RouteRule

	// regexCache memoizes compiled patterns per rule pattern string, with
	// no expiration — a rule's pattern never needs to be recompiled once
	// it has either compiled or been marked permanently broken.
	regexCache *cache.Cache

	warnedMu sync.Mutex
	warned   map[string]bool // patterns already logged as broken regex
}

// compiledRegex caches either a working pattern or the fact that it
// failed to compile — so a broken rule's lazily-memoized state is
// "permanently no-match", not "try again every call".
type compiledRegex struct {
	re  *regexp.Regexp
	err error
}

// New creates a Router with no rules.
func New() *Router {
	return &Router{
		regexCache: cache.New(cache.NoExpiration, cache.NoExpiration),
		warned:     make(map[string]bool),
	}
}

// SetRules atomically replaces the rule set. Rules are stored in
// priority-descending order, tie-broken by Seq (insertion order), so
// Route never has to re-sort on the hot path.
func (r *Router) SetRules(rules []model.RouteRule) {
	sorted := make([]model.RouteRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	r.mu.Lock()
	r.rules = sorted
	r.mu.Unlock()
}

// Rules returns a copy of the current rule set, in evaluation order.
func (r *Router) Rules() []model.RouteRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.RouteRule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Route returns the channel an application with the given name (and
// optional binary name) should be routed to. Scans the app name first;
// if nothing matches and binary is non-empty, scans again against the
// binary. Returns DefaultChannel if nothing matches either.
func (r *Router) Route(appName, binary string) string {
	r.mu.RLock()
	rules := r.rules
	r.mu.RUnlock()

	if ch, ok := r.scan(rules, appName); ok {
		return ch
	}
	if binary != "" {
		if ch, ok := r.scan(rules, binary); ok {
			return ch
		}
	}
	return DefaultChannel
}

func (r *Router) scan(rules []model.RouteRule, subject string) (string, bool) {
	for i := range rules {
		if r.matches(&rules[i], subject) {
			return rules[i].Channel, true
		}
	}
	return "", false
}

func (r *Router) matches(rule *model.RouteRule, subject string) bool {
	switch rule.Type {
	case model.MatchExact:
		return subject == rule.Pattern
	case model.MatchPrefix:
		return len(subject) >= len(rule.Pattern) && subject[:len(rule.Pattern)] == rule.Pattern
	case model.MatchRegex:
		re, ok := r.compiledPattern(rule.Pattern)
		if !ok {
			return false
		}
		return re.MatchString(subject)
	default:
		return false
	}
}

// compiledPattern returns the compiled regex for pattern, memoizing both
// successful compiles and permanent failures. A compile failure is
// logged exactly once per pattern.
func (r *Router) compiledPattern(pattern string) (*regexp.Regexp, bool) {
	if cached, found := r.regexCache.Get(pattern); found {
		cr := cached.(compiledRegex)
		return cr.re, cr.err == nil
	}

	re, err := regexp.Compile("^(?:" + pattern + ")$")
	r.regexCache.Set(pattern, compiledRegex{re: re, err: err}, cache.NoExpiration)

	if err != nil {
		r.warnedMu.Lock()
		alreadyWarned := r.warned[pattern]
		r.warned[pattern] = true
		r.warnedMu.Unlock()
		if !alreadyWarned {
			logging.Warn("route rule regex failed to compile; rule will never match", "pattern", pattern, "err", err)
		}
		return nil, false
	}
	return re, true
}
