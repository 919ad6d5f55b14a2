// Package textutil holds the text operations shared by every stage of the pipeline: code fence handling, splitting
// LLM replies into content and summary, JSON salvage, secret redaction and the attribution banner.
package textutil

import (
	"regexp"
	"slices"
	"strings"
)

// openingFences is the closed set of fence openers that RemoveOuterMarkdown will strip. A fence that is not listed here
// is left untouched, so unknown fences never eat the first line of a file.
var openingFences = []string{
	"```",
	"```python", "```Python", "```py", "```ipynb",
	"```json", "```JSON",
	"```yaml", "```yml",
	"```xml", "```svg", "```html",
	"```md", "```markdown",
	"```plaintext", "```text", "```txt",
	"```latex", "```tex",
	"```csv", "```tsv",
	"```java", "```javascript", "```groovy", "```jython", "```macro", "```nextflow",
	"```bash", "```sh", "```r", "```R", "```toml", "```ini", "```css",
	"```<FILE>", "<FILE>",
}

var closingFences = []string{"```", "</FILE>"}

func init() {
	// Longest first, so "```python" wins over "```py" and "```"
	slices.SortStableFunc(openingFences, func(a, b string) int { return len(b) - len(a) })
}

// RemoveOuterMarkdown strips a single fenced block that wraps the whole text. If the text does not start with a
// recognised opener on its own line and end with a recognised closer, it is returned unchanged.
func RemoveOuterMarkdown(text string) string {
	trimmed := strings.Trim(text, "\n ")
	for _, opener := range openingFences {
		if !strings.HasPrefix(trimmed, opener) {
			continue
		}
		rest := trimmed[len(opener):]
		if !strings.HasPrefix(rest, "\n") && !strings.HasPrefix(rest, "\r\n") {
			continue
		}
		for _, closer := range closingFences {
			if strings.HasSuffix(rest, closer) {
				inner := strings.TrimSuffix(rest, closer)
				return strings.Trim(inner, "\r\n")
			}
		}
	}
	return text
}

// SplitContentAndSummary splits an LLM reply into the file content and the one-line summary written on its last line.
// If the last line is too short to be a summary, the nearest non-empty line above it is used instead and the short
// line stays in the content.
func SplitContentAndSummary(text string) (string, string) {
	lines := strings.Split(strings.TrimRight(text, "\n "), "\n")
	if len(lines) < 2 {
		return RemoveOuterMarkdown(text), ""
	}

	summaryIdx := len(lines) - 1
	if len(strings.TrimSpace(lines[summaryIdx])) < 5 {
		for i := summaryIdx - 1; i >= 0; i-- {
			if strings.TrimSpace(lines[i]) != "" {
				summaryIdx = i
				break
			}
		}
	}

	summary := strings.TrimSpace(lines[summaryIdx])
	rest := slices.Concat(lines[:summaryIdx], lines[summaryIdx+1:])
	content := strings.TrimRight(strings.Join(rest, "\n"), "\n")
	return RemoveOuterMarkdown(content), summary
}

// AppendResult joins two chunks of a reply that was generated in more than one request. When the first chunk stops
// inside an open code fence and the second chunk re-opens it, the duplicated opener is dropped.
func AppendResult(first, second string) string {
	if !endsInsideFence(first) {
		return first + second
	}
	trimmed := strings.TrimLeft(second, "\n")
	for _, opener := range openingFences {
		if strings.HasPrefix(trimmed, opener+"\n") {
			return first + strings.TrimPrefix(trimmed, opener+"\n")
		}
	}
	return first + second
}

func endsInsideFence(text string) bool {
	open := false
	for line := range strings.Lines(text) {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			open = !open
		}
	}
	return open
}

// RemoveIndentation removes the indentation that all lines after the first one have in common. LLMs tend to indent
// whole replies when they answer inside a list item.
func RemoveIndentation(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}

	common := -1
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " "))
		if common == -1 || n < common {
			common = n
		}
	}
	if common <= 0 {
		return text
	}

	for i := 1; i < len(lines); i++ {
		if len(lines[i]) >= common {
			lines[i] = lines[i][common:]
		} else {
			lines[i] = strings.TrimLeft(lines[i], " ")
		}
	}
	return strings.Join(lines, "\n")
}

var mentionPattern = regexp.MustCompile(`(^|[^\w@/.])@([A-Za-z0-9][A-Za-z0-9_-]*)`)

// CleanOutput prepares LLM text for posting: it removes shared indentation and an outer fence, and takes the "@" off
// mentions of anyone who is not a contributor so the agent never pings strangers. Fenced code is left as is.
func CleanOutput(text string, contributors []string) string {
	known := map[string]struct{}{}
	for _, c := range contributors {
		known[strings.ToLower(c)] = struct{}{}
	}

	text = RemoveOuterMarkdown(RemoveIndentation(text))

	var out strings.Builder
	inFence := false
	for line := range strings.Lines(text) {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			out.WriteString(line)
			continue
		}
		if inFence {
			out.WriteString(line)
			continue
		}
		out.WriteString(mentionPattern.ReplaceAllStringFunc(line, func(m string) string {
			groups := mentionPattern.FindStringSubmatch(m)
			if _, ok := known[strings.ToLower(groups[2])]; ok {
				return m
			}
			return groups[1] + groups[2]
		}))
	}
	return out.String()
}

var supPattern = regexp.MustCompile(`(?s)<sup>.*?</sup>`)

// ModifyDiscussion demotes markdown headings and drops <sup> blocks, so the agent's own banners and section headers
// do not leak back into its context.
func ModifyDiscussion(text string) string {
	text = supPattern.ReplaceAllString(text, "")
	return strings.ReplaceAll(text, "\n#", "\n###")
}

var imageLinkPattern = regexp.MustCompile(`(?i)(^|[^!])\[([^\]]*)\]\(([^)\s]+\.(?:png|jpe?g|gif|svg|webp))\)`)

// PromoteImageLinks turns plain links to images into inline images, e.g. [plot](plot.png) -> ![plot](plot.png).
func PromoteImageLinks(text string) string {
	// Applied twice because adjacent links share the separating character
	for range 2 {
		text = imageLinkPattern.ReplaceAllString(text, "$1![$2]($3)")
	}
	return text
}

var imageSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg"}

// IsImagePath reports whether a path or URL names an image by its suffix.
func IsImagePath(p string) bool {
	p = strings.ToLower(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	for _, s := range imageSuffixes {
		if strings.HasSuffix(p, s) {
			return true
		}
	}
	return false
}
