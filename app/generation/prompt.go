package generation

import "fmt"

// MaxPromptLength caps client-supplied prompt text
const MaxPromptLength = 2000

// StyleDefault is used when a request does not name a style
const StyleDefault = "Default"

// styleModifiers maps each allowed style name to the text appended to the
// base prompt. Default appends nothing.
var styleModifiers = map[string]string{
	StyleDefault: "",
	"Funnier": "\n\nSTYLE MODIFIER: Push the humor further. Use more exaggeration, absurd visual analogies, " +
		"and comedic elements. Think brighter accent colors and a more playful, animated feel.",
	"Drier": "\n\nSTYLE MODIFIER: Use a more understated, dry wit approach with muted tones, subtle irony, " +
		"and deadpan visual humor. Less is more.",
	"More sarcastic": "\n\nSTYLE MODIFIER: Lean into sharp irony and pointed visual metaphors. " +
		"The sarcasm should be biting but still clever, never mean-spirited.",
	"More wholesome": "\n\nSTYLE MODIFIER: Take a lighter, more optimistic angle while keeping the satirical edge. " +
		"Warmer tones, gentler humor, and a more hopeful perspective.",
}

// AllowedStyle reports whether the given style name is recognized
func AllowedStyle(style string) bool {
	_, ok := styleModifiers[style]
	return ok
}

// AllowedStyles lists the recognized style names
func AllowedStyles() []string {
	return []string{StyleDefault, "Funnier", "Drier", "More sarcastic", "More wholesome"}
}

// BuildPrompt assembles the full generation prompt from a headline, an
// optional summary, and a style. The instructions are fixed server-side;
// clients only ever contribute the headline text.
func BuildPrompt(headline, summary, style string) string {
	base := fmt.Sprintf(
		"TASK: Create a political cartoon illustration inspired by the following headline and summary. "+
			"The cartoon should use humor, exaggeration, and symbolism to deliver a satirical take on the situation described.\n\n"+
			"HEADLINE: %s\n"+
			"SUMMARY: %s\n\n"+
			"STYLE AND TONE:\n"+
			"- Classic newspaper political cartoon style with bold ink outlines, a limited color palette "+
			"(mainly black, white, gray, and 2-3 accent colors), and a hand-drawn editorial aesthetic.\n"+
			"- Witty, clever, and slightly exaggerated. Never cruel, offensive, or mean-spirited.\n"+
			"- Maintain a consistent character design and drawing style, as if all cartoons come from the same cartoonist.\n"+
			"- Include visible, legible labels or captions only if they enhance the satire "+
			"(e.g. labeling symbols like 'Congress,' 'AI regulation,' or 'Public Opinion').\n\n"+
			"CONTENT REQUIREMENTS:\n"+
			"- Use visual metaphor (e.g. sinking ships, broken machines, tightropes, puppet strings) to represent abstract issues.\n"+
			"- Focus on irony and contrast. Show the difference between what's said and what's happening.\n"+
			"- Represent political figures or institutions as symbolic caricatures only, never photorealistic. "+
			"Keep depictions focused on ideas, policies, and institutions rather than personal attacks.\n"+
			"- The scene should be self-contained and understandable on its own, but more meaningful with the headline.\n"+
			"- Rely on visual storytelling. Avoid text-heavy dialogue.\n\n"+
			"SAFETY AND SENSITIVITY:\n"+
			"- Never depict graphic violence, hate speech, or discriminatory content.\n"+
			"- Always punch up. Target power, hypocrisy, or absurdity, never vulnerable individuals or groups.\n"+
			"- Avoid content that could be construed as personally attacking or defaming any real individual.\n"+
			"- Keep the output suitable for a general audience and appropriate for a professional publication.\n"+
			"- When depicting sensitive topics, use abstract symbolism rather than literal representation.\n\n"+
			"OUTPUT FORMAT:\n"+
			"- A single detailed cartoon illustration in 16:9 aspect ratio.\n"+
			"- Center composition with a clear focal point.\n"+
			"- Include enough detail and context to make the commentary clear.\n\n"+
			"GOAL: Create a timeless, funny, and thought-provoking political cartoon that visually communicates "+
			"the essence of the headline through satire, metaphor, and exaggeration, in the spirit of "+
			"publications like The New Yorker, The Economist, or Politico.",
		headline, summary)

	return base + styleModifiers[style]
}
