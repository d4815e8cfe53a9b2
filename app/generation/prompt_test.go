package generation

import (
	"strings"
	"testing"
)

func TestBuildPromptEmbedsHeadlineAndSummary(t *testing.T) {
	prompt := BuildPrompt("Markets Rally", "Stocks climbed on strong earnings.", StyleDefault)

	if !strings.Contains(prompt, "HEADLINE: Markets Rally") {
		t.Error("Expected headline in prompt")
	}
	if !strings.Contains(prompt, "SUMMARY: Stocks climbed on strong earnings.") {
		t.Error("Expected summary in prompt")
	}
	if strings.Contains(prompt, "STYLE MODIFIER") {
		t.Error("Expected no style modifier for the default style")
	}
}

func TestBuildPromptAppendsStyleModifier(t *testing.T) {
	base := BuildPrompt("Headline", "", StyleDefault)

	for _, style := range []string{"Funnier", "Drier", "More sarcastic", "More wholesome"} {
		prompt := BuildPrompt("Headline", "", style)
		if !strings.HasPrefix(prompt, base) {
			t.Errorf("Expected style '%s' to extend the base prompt", style)
		}
		if !strings.Contains(prompt, "STYLE MODIFIER") {
			t.Errorf("Expected style modifier for '%s'", style)
		}
	}
}

func TestAllowedStyle(t *testing.T) {
	for _, style := range AllowedStyles() {
		if !AllowedStyle(style) {
			t.Errorf("Expected style '%s' to be allowed", style)
		}
	}

	if AllowedStyle("Grimdark") {
		t.Error("Expected unknown style to be rejected")
	}
}

func TestKindFromStatus(t *testing.T) {
	cases := map[int]Kind{
		429: KindRateLimited,
		401: KindUnauthorized,
		403: KindUnauthorized,
		400: KindInvalidRequest,
		404: KindInvalidRequest,
		500: KindUnavailable,
		503: KindUnavailable,
		0:   KindUnknown,
	}

	for status, expected := range cases {
		if got := KindFromStatus(status); got != expected {
			t.Errorf("Status %d: expected '%s', got '%s'", status, expected, got)
		}
	}
}
