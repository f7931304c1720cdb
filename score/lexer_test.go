package score

import (
	"reflect"
	"testing"
)

func TestStripCommentHashAndSlashSlash(t *testing.T) {
	cases := map[string]string{
		"bpm 120 # the tempo":  "bpm 120",
		"bpm 120 // the tempo": "bpm 120",
		"bpm 120":              "bpm 120",
		"pat A = C4 # D4":      "pat A = C4",
	}
	for in, want := range cases {
		if got := stripComment(in); got != want {
			t.Errorf("stripComment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStripCommentIgnoresHashInsideQuotesAndGroups(t *testing.T) {
	cases := map[string]string{
		`song name "Rock #1"`: `song name "Rock #1"`,
		"pat A = (C4 #4)":     "pat A = (C4 #4)",
	}
	for in, want := range cases {
		if got := stripComment(in); got != want {
			t.Errorf("stripComment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitTokensKeepsParenGroupsIntact(t *testing.T) {
	got := splitTokens("(C4 D4)*2 E4")
	want := []string{"(C4 D4)*2", "E4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitTokens = %v, want %v", got, want)
	}
}

func TestSplitTokensWhitespaceVariants(t *testing.T) {
	got := splitTokens("C4\tD4  E4")
	want := []string{"C4", "D4", "E4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitTokens = %v, want %v", got, want)
	}
}
