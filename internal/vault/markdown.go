package vault

import (
	"bufio"
	"io"
	"strings"

	"github.com/hyperjump/shirabe/internal/models"
)

// ParseHeadings extracts ATX headings ("#" through "######") from markdown.
// Headings inside fenced code blocks are ignored. Line numbers are 1-based.
func ParseHeadings(r io.Reader) ([]models.HeadingInfo, error) {
	var headings []models.HeadingInfo
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	inFence := false
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		trimmed := strings.TrimSpace(text)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence || !strings.HasPrefix(trimmed, "#") {
			continue
		}
		level := 0
		for level < len(trimmed) && trimmed[level] == '#' {
			level++
		}
		if level > 6 || level >= len(trimmed) || trimmed[level] != ' ' {
			continue
		}
		headingText := strings.TrimSpace(trimmed[level:])
		// Strip optional closing hashes: "## Title ##"
		headingText = strings.TrimRight(headingText, "#")
		headingText = strings.TrimSpace(headingText)
		if headingText == "" {
			continue
		}
		headings = append(headings, models.HeadingInfo{Text: headingText, Level: level, Line: line})
	}
	return headings, scanner.Err()
}
