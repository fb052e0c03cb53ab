package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"

	"tidywatch/logger"
)

// ErrFileNotFound reports a missing rule-set file.
var ErrFileNotFound = errors.New("rule file not found")

// ParseError reports an unparseable rule-set file or rule entry.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("rule parse error at line %d: %s", e.Line, e.Reason)
}

// UnknownKindError reports a rule entry with a kind no builder is
// registered for.
type UnknownKindError struct {
	Name string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown rule kind %q", e.Name)
}

type ruleSpec struct {
	Name         string   `yaml:"name"`
	Kind         string   `yaml:"kind"`
	Weight       float64  `yaml:"weight"`
	Extensions   []string `yaml:"extensions"`
	Pattern      string   `yaml:"pattern"`
	Tokens       []string `yaml:"tokens"`
	Days         int      `yaml:"days"`
	Depth        int      `yaml:"depth"`
	Bytes        int64    `yaml:"bytes"`
	MimePrefixes []string `yaml:"mime_prefixes"`
}

type ruleFile struct {
	Rules []yaml.Node `yaml:"rules"`
}

type ruleBuilder func(spec ruleSpec, line int) (Rule, error)

var ruleBuilders = map[string]ruleBuilder{
	"extension":     buildExtensionRule,
	"name_pattern":  buildNamePatternRule,
	"name_contains": buildNameContainsRule,
	"age_days":      buildAgeDaysRule,
	"path_depth":    buildPathDepthRule,
	"min_size":      buildMinSizeRule,
	"mime_type":     buildMimeTypeRule,
}

// Load parses the YAML rule-set file at path. A malformed individual rule is
// skipped and reported, never fatal: the returned count is the number of
// rules actually loaded, and the error slice holds one entry per rule that
// could not be built. Only a missing or structurally unreadable file fails
// the load as a whole.
func Load(path string) (*RuleSet, int, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, []error{fmt.Errorf("%w: %s", ErrFileNotFound, path)}
		}
		return nil, 0, []error{fmt.Errorf("reading rule file %s: %w", path, err)}
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, 0, []error{&ParseError{Line: yamlErrorLine(err), Reason: err.Error()}}
	}

	set := &RuleSet{LoadedAt: time.Now()}
	var errs []error
	for i := range file.Rules {
		node := &file.Rules[i]
		rule, err := buildRule(node)
		if err != nil {
			logger.Warnf("Skipping rule at line %d: %v", node.Line, err)
			errs = append(errs, err)
			continue
		}
		set.Rules = append(set.Rules, rule)
	}

	return set, len(set.Rules), errs
}

func buildRule(node *yaml.Node) (Rule, error) {
	var spec ruleSpec
	if err := node.Decode(&spec); err != nil {
		return nil, &ParseError{Line: node.Line, Reason: err.Error()}
	}
	if spec.Name == "" {
		return nil, &ParseError{Line: node.Line, Reason: "rule has no name"}
	}
	builder, ok := ruleBuilders[spec.Kind]
	if !ok {
		return nil, &UnknownKindError{Name: spec.Kind}
	}
	return builder(spec, node.Line)
}

func buildExtensionRule(spec ruleSpec, line int) (Rule, error) {
	if len(spec.Extensions) == 0 {
		return nil, &ParseError{Line: line, Reason: "extension rule needs a non-empty extensions list"}
	}
	exts := make(map[string]struct{}, len(spec.Extensions))
	for _, ext := range spec.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return extensionRule{baseRule: base(spec), extensions: exts}, nil
}

func buildNamePatternRule(spec ruleSpec, line int) (Rule, error) {
	if spec.Pattern == "" {
		return nil, &ParseError{Line: line, Reason: "name_pattern rule needs a pattern"}
	}
	re, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return nil, &ParseError{Line: line, Reason: fmt.Sprintf("invalid pattern: %v", err)}
	}
	return namePatternRule{baseRule: base(spec), pattern: re}, nil
}

func buildNameContainsRule(spec ruleSpec, line int) (Rule, error) {
	if len(spec.Tokens) == 0 {
		return nil, &ParseError{Line: line, Reason: "name_contains rule needs a non-empty tokens list"}
	}
	tokens := make([]string, 0, len(spec.Tokens))
	for _, token := range spec.Tokens {
		token = strings.ToLower(strings.TrimSpace(token))
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return nil, &ParseError{Line: line, Reason: "name_contains rule has only empty tokens"}
	}
	return nameContainsRule{baseRule: base(spec), matcher: ahocorasick.NewStringMatcher(tokens)}, nil
}

func buildAgeDaysRule(spec ruleSpec, line int) (Rule, error) {
	if spec.Days <= 0 {
		return nil, &ParseError{Line: line, Reason: "age_days rule needs days > 0"}
	}
	return ageDaysRule{
		baseRule:  base(spec),
		olderThan: time.Duration(spec.Days) * 24 * time.Hour,
		now:       time.Now,
	}, nil
}

func buildPathDepthRule(spec ruleSpec, line int) (Rule, error) {
	if spec.Depth <= 0 {
		return nil, &ParseError{Line: line, Reason: "path_depth rule needs depth > 0"}
	}
	return pathDepthRule{baseRule: base(spec), deeperThan: spec.Depth}, nil
}

func buildMinSizeRule(spec ruleSpec, line int) (Rule, error) {
	if spec.Bytes <= 0 {
		return nil, &ParseError{Line: line, Reason: "min_size rule needs bytes > 0"}
	}
	return minSizeRule{baseRule: base(spec), bytes: spec.Bytes}, nil
}

func buildMimeTypeRule(spec ruleSpec, line int) (Rule, error) {
	if len(spec.MimePrefixes) == 0 {
		return nil, &ParseError{Line: line, Reason: "mime_type rule needs a non-empty mime_prefixes list"}
	}
	return mimeTypeRule{baseRule: base(spec), prefixes: spec.MimePrefixes}, nil
}

func base(spec ruleSpec) baseRule {
	return baseRule{name: spec.Name, kind: spec.Kind, weight: spec.Weight}
}

func yamlErrorLine(err error) int {
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		var line int
		if _, scanErr := fmt.Sscanf(typeErr.Errors[0], "line %d:", &line); scanErr == nil {
			return line
		}
	}
	return 0
}
