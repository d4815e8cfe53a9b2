package feed

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// maxSummaryLength caps stored summaries; feed descriptions can carry whole
// article bodies
const maxSummaryLength = 500

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Parser turns raw feed documents into headline candidates
type Parser struct {
	gofeedParser *gofeed.Parser
}

// NewParser creates a new feed parser
func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Parse extracts up to maxItems candidates from raw feed data. Entries
// without both a title and a link are skipped.
func (p *Parser) Parse(data []byte, maxItems int) ([]Candidate, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	candidates := make([]Candidate, 0, maxItems)
	for _, item := range parsed.Items {
		if len(candidates) >= maxItems {
			break
		}

		title := strings.TrimSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		if title == "" || link == "" {
			continue
		}

		candidate := Candidate{
			Title:   title,
			Summary: cleanSummary(p.coalesce(item.Description, item.Content)),
			URL:     link,
		}

		if item.PublishedParsed != nil {
			published := item.PublishedParsed.UTC()
			candidate.PublishedAt = &published
		} else if item.UpdatedParsed != nil {
			updated := item.UpdatedParsed.UTC()
			candidate.PublishedAt = &updated
		}

		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

// coalesce returns the first non-empty string from the provided values
func (p *Parser) coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// cleanSummary strips markup from a feed description and truncates it on a
// rune boundary
func cleanSummary(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.Join(strings.Fields(s), " ")
	if runes := []rune(s); len(runes) > maxSummaryLength {
		s = string(runes[:maxSummaryLength])
	}
	return s
}

// DumpRaw writes a fetched feed body to dir for offline inspection. Used
// when a feed fails to parse and raw dumps are enabled.
func DumpRaw(dir, feedID string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create dump directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.xml", feedID, time.Now().UTC().Format("20060102T150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write feed dump: %w", err)
	}

	return path, nil
}
