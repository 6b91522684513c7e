package stream

import "regexp"

var (
	fenceOpenRe  = regexp.MustCompile("```(\\w+)?")
	fenceCloseRe = regexp.MustCompile("```\\s*$")
	headerRe     = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	boldRe       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	listItemRe   = regexp.MustCompile(`(?m)^\s*[-*+]\s+(.+)$`)
)

// DetectStructure scans a chunk's content for fenced-code markers and
// markdown elements. It is a pure function over the given content; there is
// no lookback across chunks. Returns nil when nothing was found.
func DetectStructure(content string) *Structure {
	fence := detectCodeFence(content)
	md := detectMarkdown(content)
	if fence == nil && len(md) == 0 {
		return nil
	}
	return &Structure{CodeFence: fence, Markdown: md}
}

func detectCodeFence(content string) *CodeFence {
	open := fenceOpenRe.FindStringSubmatchIndex(content)
	closing := fenceCloseRe.MatchString(content)

	if open == nil {
		return nil
	}

	language := "text"
	if open[2] >= 0 {
		language = content[open[2]:open[3]]
	}
	return &CodeFence{
		Language: language,
		Start:    open[0],
		Opening:  true,
		Closing:  closing,
	}
}

func detectMarkdown(content string) []MarkdownElement {
	var elements []MarkdownElement

	for _, m := range headerRe.FindAllStringSubmatchIndex(content, -1) {
		elements = append(elements, MarkdownElement{
			Type:     "header",
			Level:    m[3] - m[2],
			Text:     content[m[4]:m[5]],
			Position: m[0],
		})
	}

	for _, m := range boldRe.FindAllStringSubmatchIndex(content, -1) {
		elements = append(elements, MarkdownElement{
			Type:     "bold",
			Text:     content[m[2]:m[3]],
			Position: m[0],
		})
	}

	for _, m := range listItemRe.FindAllStringSubmatchIndex(content, -1) {
		elements = append(elements, MarkdownElement{
			Type:     "list_item",
			Text:     content[m[2]:m[3]],
			Position: m[0],
		})
	}

	return elements
}
