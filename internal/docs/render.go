package docs

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
)

// Markdown styles accepted by Render.
const (
	StyleDark  = "dark"
	StyleLight = "light"
	StylePlain = "notty"
)

var (
	rendererMu sync.Mutex
	// Keyed by style and wrap width. WithAutoStyle is avoided since it queries the terminal.
	renderers = map[string]*glamour.TermRenderer{}
)

// StyleFromEnv reads STAGING_MD_STYLE, falling back to fallback.
func StyleFromEnv(fallback string) string {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("STAGING_MD_STYLE"))) {
	case StyleLight:
		return StyleLight
	case StyleDark:
		return StyleDark
	case StylePlain, "plain", "ascii":
		return StylePlain
	}
	return fallback
}

func renderer(style string, width int) (*glamour.TermRenderer, error) {
	key := style + ":" + strconv.Itoa(width)

	rendererMu.Lock()
	defer rendererMu.Unlock()
	if r := renderers[key]; r != nil {
		return r, nil
	}
	cfg := styles.DarkStyleConfig
	switch style {
	case StyleLight:
		cfg = styles.LightStyleConfig
	case StylePlain:
		cfg = styles.NoTTYStyleConfig
	}
	r, err := glamour.NewTermRenderer(glamour.WithStyles(cfg), glamour.WithWordWrap(width))
	if err != nil {
		return nil, err
	}
	renderers[key] = r
	return r, nil
}

// Render formats markdown for a terminal. On failure the source is returned unchanged.
func Render(md string, width int, style string) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	if width < 20 {
		width = 20
	}
	r, err := renderer(style, width)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
