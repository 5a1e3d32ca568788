package publish

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"staging-cli/internal/calendar"
	"staging-cli/internal/format"
	"staging-cli/internal/render"

	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdownRenderer = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		emoji.Emoji,
	),
	goldmark.WithRendererOptions(
		// Raw HTML is never passed through.
		html.WithHardWraps(),
	),
)

// RenderWeekMarkdown renders one week as a GFM table (one row per grid row, the type name in
// the first column of each type block) followed by the constraints touching the week.
func RenderWeekMarkdown(m *render.Model, w *render.Week) string {
	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	l := w.Render()
	writeLn("# Week of " + w.String())
	writeLn("")
	if l.RowCount == 0 {
		writeLn("_No assignables._")
		return buf.String()
	}

	head := []string{"Type"}
	for _, d := range l.Dates {
		head = append(head, d.Weekday().String()[:3]+" "+calendar.ShortString(d))
	}
	writeLn("| " + strings.Join(head, " | ") + " |")
	writeLn("|" + strings.Repeat(" --- |", len(head)))

	names := map[int]string{}
	for _, ts := range l.TypeSpans {
		names[ts.Start] = ts.Name
	}
	for row := 0; row < l.RowCount; row++ {
		cells := []string{escapeCell(names[row])}
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			text := ""
			if ra := l.Cell(row, wd); ra != nil {
				text = format.CellLabel(m, ra)
			}
			cells = append(cells, escapeCell(text))
		}
		writeLn("| " + strings.Join(cells, " | ") + " |")
	}

	seen := map[int]bool{}
	var lines []string
	for _, ra := range w.Assignables() {
		for _, c := range m.ConstraintsOf(ra) {
			if seen[c.Index()] {
				continue
			}
			seen[c.Index()] = true
			lines = append(lines, constraintLine(m, c))
		}
	}
	if len(lines) > 0 {
		writeLn("")
		writeLn("## Constraints")
		writeLn("")
		for _, ln := range lines {
			writeLn("- " + ln)
		}
	}
	return buf.String()
}

func constraintLine(m *render.Model, c *render.Constraint) string {
	var refs []string
	for _, ref := range c.Entailed(m).Sorted() {
		refs = append(refs, "`"+ref.String()+"`")
	}
	s := fmt.Sprintf("**%d** %s: %s", c.Index(), c.Class(), strings.Join(refs, ", "))
	switch {
	case c.Orphaned(m):
		s += " :warning: orphaned"
	case !c.Valid():
		s += " :warning: invalid"
	}
	return s
}

// RenderIndexMarkdown links every exported week page.
func RenderIndexMarkdown(title string, weeks []*render.Week, ext string) string {
	var buf bytes.Buffer
	buf.WriteString("# " + strings.TrimSpace(title) + "\n\n")
	for _, w := range weeks {
		name := weekFileName(w, ext)
		fmt.Fprintf(&buf, "- [%s](weeks/%s) (%d assignables)\n", w.String(), name, w.Len())
	}
	return buf.String()
}

// RenderHTML converts exported markdown to a standalone HTML page.
func RenderHTML(title, md string) ([]byte, error) {
	var body bytes.Buffer
	if err := markdownRenderer.Convert([]byte(md), &body); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	out.WriteString("<!doctype html>\n<html><head><meta charset=\"utf-8\"><title>")
	out.WriteString(htmlEscape(title))
	out.WriteString("</title></head><body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body></html>\n")
	return out.Bytes(), nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

func weekFileName(w *render.Week, ext string) string {
	return w.Sunday().Format(time.DateOnly) + ext
}
