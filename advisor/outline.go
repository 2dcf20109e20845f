package advisor

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// maxOutlineLines bounds the outline returned by Analyze.
const maxOutlineLines = 40

func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
}

// outline renders page HTML as Markdown and keeps only the ATX heading
// lines, giving the analyzed issues a page structure to refer to.
func (s *Service) outline(html, pageURL string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	md, err := s.md.ConvertString(html, converter.WithDomain(pageURL))
	if err != nil {
		s.logger.Debug("advisor: outline conversion failed", "url", pageURL, "error", err)
		return ""
	}
	var lines []string
	for _, l := range strings.Split(md, "\n") {
		l = strings.TrimSpace(l)
		if strings.HasPrefix(l, "#") {
			lines = append(lines, l)
			if len(lines) == maxOutlineLines {
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}
