package publish

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"staging-cli/internal/render"
)

type WriteOptions struct {
	// Title heads the index page.
	Title     string
	HTML      bool
	Overwrite bool
}

type WriteResult struct {
	Written []string `json:"written"`
}

// WriteWeeks exports weeks into toDir as index.md plus weeks/<sunday>.md, and .html
// siblings when opt.HTML is set. It stops on the first error.
func WriteWeeks(m *render.Model, weeks []*render.Week, toDir string, opt WriteOptions) (WriteResult, error) {
	if m == nil {
		return WriteResult{}, errors.New("missing model")
	}
	toDir = strings.TrimSpace(toDir)
	if toDir == "" {
		return WriteResult{}, errors.New("missing --to")
	}
	if len(weeks) == 0 {
		return WriteResult{}, errors.New("no weeks to export")
	}
	toDir = filepath.Clean(toDir)
	title := strings.TrimSpace(opt.Title)
	if title == "" {
		title = "Schedule"
	}

	weeksDir := filepath.Join(toDir, "weeks")
	if err := os.MkdirAll(weeksDir, 0o755); err != nil {
		return WriteResult{}, err
	}

	var written []string
	write := func(path string, b []byte) error {
		if err := writeFile(path, b, opt.Overwrite); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}
	page := func(dir, base, title, md, linkExt string) error {
		if err := write(filepath.Join(dir, base+".md"), []byte(md)); err != nil {
			return err
		}
		if !opt.HTML {
			return nil
		}
		if linkExt != "" {
			md = strings.ReplaceAll(md, ".md)", linkExt+")")
		}
		b, err := RenderHTML(title, md)
		if err != nil {
			return err
		}
		return write(filepath.Join(dir, base+".html"), b)
	}

	if err := page(toDir, "index", title, RenderIndexMarkdown(title, weeks, ".md"), ".html"); err != nil {
		return WriteResult{Written: written}, err
	}
	for _, w := range weeks {
		base := weekFileName(w, "")
		if err := page(weeksDir, base, "Week of "+w.String(), RenderWeekMarkdown(m, w), ""); err != nil {
			return WriteResult{Written: written}, err
		}
	}
	return WriteResult{Written: written}, nil
}

func writeFile(path string, b []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.New("file exists (use --overwrite): " + path)
		}
	}
	return os.WriteFile(path, b, 0o644)
}
