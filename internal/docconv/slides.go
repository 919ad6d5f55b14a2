package docconv

import (
	"fmt"
	"strings"
)

// Slide is one slide as the model writes it. Each content entry is either a line of text or the path of an image.
type Slide struct {
	Title   string   `json:"title"`
	Content []string `json:"content"`
}

// SlidesMarkdown renders slides as a pandoc slide show. The first slide becomes the title slide and its content the
// author. Entries that name a key of images are rendered as pictures.
func SlidesMarkdown(slides []Slide, images map[string][]byte) string {
	if len(slides) == 0 {
		return ""
	}
	var sb strings.Builder
	title := slides[0]
	fmt.Fprintf(&sb, "---\ntitle: %q\n", title.Title)
	if len(title.Content) > 0 {
		fmt.Fprintf(&sb, "author: %q\n", strings.Join(title.Content, ", "))
	}
	sb.WriteString("---\n")

	for _, s := range slides[1:] {
		fmt.Fprintf(&sb, "\n# %s\n\n", s.Title)
		for _, c := range s.Content {
			c = strings.TrimSpace(c)
			if _, ok := images[c]; ok {
				fmt.Fprintf(&sb, "![](%s)\n\n", c)
				continue
			}
			if strings.HasPrefix(c, "- ") || strings.HasPrefix(c, "* ") {
				sb.WriteString(c + "\n")
				continue
			}
			sb.WriteString(c + "\n\n")
		}
	}
	return sb.String()
}
