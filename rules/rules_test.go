package rules

import (
	"testing"
	"time"

	"github.com/cloudflare/ahocorasick"
)

func testAttrs() FileAttrs {
	return FileAttrs{
		Path:     "/home/user/projects/demo/notes.tmp",
		Name:     "notes.tmp",
		Size:     2048,
		ModTime:  time.Now().Add(-200 * 24 * time.Hour),
		MimeType: "application/zip",
	}
}

func fixedNow() time.Time {
	return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestExtensionRule(t *testing.T) {
	rule := extensionRule{
		baseRule:   baseRule{name: "tmp", kind: "extension", weight: -2},
		extensions: map[string]struct{}{".tmp": {}},
	}
	if !rule.Satisfied(testAttrs()) {
		t.Fatal("expected .tmp to satisfy extension rule")
	}
	attrs := testAttrs()
	attrs.Name = "notes.TXT"
	if rule.Satisfied(attrs) {
		t.Fatal("did not expect .txt to satisfy extension rule")
	}
}

func TestNameContainsRule(t *testing.T) {
	rule := nameContainsRule{
		baseRule: baseRule{name: "untidy words", kind: "name_contains", weight: -1},
		matcher:  ahocorasick.NewStringMatcher([]string{"untitled", "asdf"}),
	}
	attrs := testAttrs()
	attrs.Name = "Untitled Document.docx"
	if !rule.Satisfied(attrs) {
		t.Fatal("expected match on untitled (case-insensitive)")
	}
	attrs.Name = "report.docx"
	if rule.Satisfied(attrs) {
		t.Fatal("did not expect match on clean name")
	}
}

func TestAgeDaysRule(t *testing.T) {
	rule := ageDaysRule{
		baseRule:  baseRule{name: "stale", kind: "age_days", weight: -1},
		olderThan: 90 * 24 * time.Hour,
		now:       fixedNow,
	}
	attrs := testAttrs()
	attrs.ModTime = fixedNow().Add(-91 * 24 * time.Hour)
	if !rule.Satisfied(attrs) {
		t.Fatal("expected 91-day-old file to be stale")
	}
	attrs.ModTime = fixedNow().Add(-89 * 24 * time.Hour)
	if rule.Satisfied(attrs) {
		t.Fatal("did not expect 89-day-old file to be stale")
	}
	attrs.ModTime = time.Time{}
	if rule.Satisfied(attrs) {
		t.Fatal("zero mod time must never satisfy an age rule")
	}
}

func TestPathDepthRule(t *testing.T) {
	rule := pathDepthRule{
		baseRule:   baseRule{name: "deep", kind: "path_depth", weight: -0.5},
		deeperThan: 4,
	}
	if !rule.Satisfied(FileAttrs{Path: "/a/b/c/d/e/file.txt"}) {
		t.Fatal("expected depth 6 to exceed threshold 4")
	}
	if rule.Satisfied(FileAttrs{Path: "/a/b/file.txt"}) {
		t.Fatal("did not expect depth 3 to exceed threshold 4")
	}
}

func TestMimeTypeRule(t *testing.T) {
	rule := mimeTypeRule{
		baseRule: baseRule{name: "archive", kind: "mime_type", weight: -0.5},
		prefixes: []string{"application/zip", "application/x-tar"},
	}
	if !rule.Satisfied(testAttrs()) {
		t.Fatal("expected application/zip to match")
	}
	attrs := testAttrs()
	attrs.MimeType = ""
	if rule.Satisfied(attrs) {
		t.Fatal("empty MIME type must never match")
	}
}

func TestEvaluateSumsSatisfiedWeights(t *testing.T) {
	set := &RuleSet{
		Rules: []Rule{
			extensionRule{
				baseRule:   baseRule{name: "tmp", kind: "extension", weight: -2},
				extensions: map[string]struct{}{".tmp": {}},
			},
			minSizeRule{
				baseRule: baseRule{name: "big", kind: "min_size", weight: -1},
				bytes:    1 << 30,
			},
			mimeTypeRule{
				baseRule: baseRule{name: "archive", kind: "mime_type", weight: -0.5},
				prefixes: []string{"application/zip"},
			},
		},
		LoadedAt: time.Now(),
	}

	// tmp and archive apply, min_size does not.
	score := Evaluate(testAttrs(), set)
	if score != Score(-2.5) {
		t.Fatalf("expected score -2.5, got %v", score)
	}
}

func TestEvaluateDeterministicAndOrderIndependent(t *testing.T) {
	ruleA := extensionRule{
		baseRule:   baseRule{name: "a", kind: "extension", weight: -2},
		extensions: map[string]struct{}{".tmp": {}},
	}
	ruleB := pathDepthRule{
		baseRule:   baseRule{name: "b", kind: "path_depth", weight: -0.5},
		deeperThan: 3,
	}

	forward := &RuleSet{Rules: []Rule{ruleA, ruleB}}
	reversed := &RuleSet{Rules: []Rule{ruleB, ruleA}}

	attrs := testAttrs()
	first := Evaluate(attrs, forward)
	for i := 0; i < 10; i++ {
		if got := Evaluate(attrs, forward); got != first {
			t.Fatalf("evaluation not deterministic: %v vs %v", got, first)
		}
	}
	if got := Evaluate(attrs, reversed); got != first {
		t.Fatalf("score depends on rule order: %v vs %v", got, first)
	}
}
