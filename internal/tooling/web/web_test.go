package web

import (
	"strings"
	"testing"

	"github.com/microcosm-cc/bluemonday"
)

func TestSplitCountAndQuery(t *testing.T) {
	n, query, err := splitCountAndQuery("3 best go testing libraries")
	if err != nil {
		t.Fatalf("splitCountAndQuery: %v", err)
	}
	if n != 3 || query != "best go testing libraries" {
		t.Fatalf("want (3, %q), got (%d, %q)", "best go testing libraries", n, query)
	}
}

func TestSplitCountAndQueryCapsAtMax(t *testing.T) {
	n, _, err := splitCountAndQuery("50 too many results")
	if err != nil {
		t.Fatalf("splitCountAndQuery: %v", err)
	}
	if n != maxResultsPerQuery {
		t.Fatalf("want capped at %d, got %d", maxResultsPerQuery, n)
	}
}

func TestSplitCountAndQueryRejectsMissingCount(t *testing.T) {
	if _, _, err := splitCountAndQuery("just a query"); err == nil {
		t.Fatal("expected an error when the first field isn't a number")
	}
}

func TestExtractReadableTextSkipsScriptAndStyle(t *testing.T) {
	raw := `<html><head><style>body{color:red}</style></head><body><script>alert(1)</script><p>Hello world</p></body></html>`
	text, err := extractReadableText(bluemonday.UGCPolicy(), raw)
	if err != nil {
		t.Fatalf("extractReadableText: %v", err)
	}
	if strings.Contains(text, "alert") || strings.Contains(text, "color:red") {
		t.Fatalf("script/style content leaked into extracted text: %q", text)
	}
	if !strings.Contains(text, "Hello world") {
		t.Fatalf("want extracted paragraph text, got %q", text)
	}
}
