// Package rules implements the tidiness scoring policy: a rule set loaded
// from a declarative YAML file and a pure evaluation function over file
// attributes. Rules are immutable after load and hold no mutable state, so
// evaluation order never affects the resulting score.
package rules

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cloudflare/ahocorasick"
)

// Score is the aggregated tidiness score of a file: the sum of the weights
// of all satisfied rules.
type Score float64

// FileAttrs carries the scoring-relevant attributes of a tracked file.
type FileAttrs struct {
	Path     string
	Name     string
	Size     int64
	ModTime  time.Time
	MimeType string
}

// Rule is a single named predicate/weight pair.
type Rule interface {
	Name() string
	Kind() string
	Weight() float64
	Satisfied(attrs FileAttrs) bool
}

// RuleSet is the classification policy for one run of the agent. LoadedAt
// versions the set; individual rules have no identity beyond their name.
type RuleSet struct {
	Rules    []Rule
	LoadedAt time.Time
}

// Evaluate sums the weights of all rules satisfied by attrs. It is
// deterministic and never fails: a rule either contributes its weight or
// nothing.
func Evaluate(attrs FileAttrs, set *RuleSet) Score {
	var total float64
	for _, rule := range set.Rules {
		if rule.Satisfied(attrs) {
			total += rule.Weight()
		}
	}
	return Score(total)
}

type baseRule struct {
	name   string
	kind   string
	weight float64
}

func (r baseRule) Name() string    { return r.name }
func (r baseRule) Kind() string    { return r.kind }
func (r baseRule) Weight() float64 { return r.weight }

type extensionRule struct {
	baseRule
	extensions map[string]struct{}
}

func (r extensionRule) Satisfied(attrs FileAttrs) bool {
	ext := strings.ToLower(filepath.Ext(attrs.Name))
	_, ok := r.extensions[ext]
	return ok
}

type namePatternRule struct {
	baseRule
	pattern *regexp.Regexp
}

func (r namePatternRule) Satisfied(attrs FileAttrs) bool {
	return r.pattern.MatchString(attrs.Name)
}

type nameContainsRule struct {
	baseRule
	matcher *ahocorasick.Matcher
}

func (r nameContainsRule) Satisfied(attrs FileAttrs) bool {
	return len(r.matcher.Match([]byte(strings.ToLower(attrs.Name)))) > 0
}

type ageDaysRule struct {
	baseRule
	olderThan time.Duration
	now       func() time.Time
}

func (r ageDaysRule) Satisfied(attrs FileAttrs) bool {
	if attrs.ModTime.IsZero() {
		return false
	}
	return r.now().Sub(attrs.ModTime) > r.olderThan
}

type pathDepthRule struct {
	baseRule
	deeperThan int
}

func (r pathDepthRule) Satisfied(attrs FileAttrs) bool {
	depth := strings.Count(filepath.ToSlash(filepath.Clean(attrs.Path)), "/")
	return depth > r.deeperThan
}

type minSizeRule struct {
	baseRule
	bytes int64
}

func (r minSizeRule) Satisfied(attrs FileAttrs) bool {
	return attrs.Size >= r.bytes
}

type mimeTypeRule struct {
	baseRule
	prefixes []string
}

func (r mimeTypeRule) Satisfied(attrs FileAttrs) bool {
	if attrs.MimeType == "" {
		return false
	}
	for _, prefix := range r.prefixes {
		if strings.HasPrefix(attrs.MimeType, prefix) {
			return true
		}
	}
	return false
}
