package vault

import (
	"strings"
	"testing"

	"github.com/hyperjump/shirabe/internal/models"
)

func TestParseHeadings(t *testing.T) {
	doc := `# Title

Some text.

## Section one
### Deep dive ###

` + "```" + `
# not a heading, code fence
` + "```" + `

~~~
## also fenced
~~~

####### seven hashes is not a heading
#no space after hash
#
## Closing ##
`
	headings, err := ParseHeadings(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	want := []models.HeadingInfo{
		{Text: "Title", Level: 1, Line: 1},
		{Text: "Section one", Level: 2, Line: 5},
		{Text: "Deep dive", Level: 3, Line: 6},
		{Text: "Closing", Level: 2, Line: 19},
	}
	if len(headings) != len(want) {
		t.Fatalf("got %d headings: %+v", len(headings), headings)
	}
	for i, h := range headings {
		if h != want[i] {
			t.Errorf("heading %d: got %+v, want %+v", i, h, want[i])
		}
	}
}

func TestParseHeadingsEmpty(t *testing.T) {
	headings, err := ParseHeadings(strings.NewReader("plain text\nno headings here\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(headings) != 0 {
		t.Errorf("got %+v", headings)
	}
}

func TestParseHeadingsIndentedFence(t *testing.T) {
	doc := "  ```\n# fenced despite indent\n  ```\n# Real\n"
	headings, err := ParseHeadings(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(headings) != 1 || headings[0].Text != "Real" {
		t.Errorf("got %+v", headings)
	}
}
