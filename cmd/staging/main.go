package main

import (
	"os"
	"strings"
	"time"

	"staging-cli/internal/cli"
)

func isDate(s string) bool {
	_, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	return err == nil
}

// rewriteDateShortcutArgs turns `staging <YYYY-MM-DD>` into `staging week <YYYY-MM-DD>`.
//
// Cobra treats the first positional token as a subcommand, so argv is rewritten before
// parsing. Persistent flags may come first, so this looks for the first positional token.
func rewriteDateShortcutArgs(argv []string) []string {
	if len(argv) < 2 {
		return argv
	}

	valueFlags := map[string]bool{
		"--dir":        true,
		"--workspace":  true,
		"--server":     true,
		"--tz":         true,
		"--format":     true,
		"--log-level":  true,
		"--log-format": true,
	}

	insert := func(i int) []string {
		out := make([]string, 0, len(argv)+1)
		out = append(out, argv[:i]...)
		out = append(out, "week")
		return append(out, argv[i:]...)
	}

	for i := 1; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		if a == "" {
			continue
		}
		if a == "--" {
			if i+1 < len(argv) && isDate(argv[i+1]) {
				return insert(i + 1)
			}
			return argv
		}
		if strings.HasPrefix(a, "-") {
			// Unknown flags are assumed to take no value so a date is never swallowed.
			if !strings.Contains(a, "=") && valueFlags[a] {
				i++
			}
			continue
		}
		if isDate(a) {
			return insert(i)
		}
		return argv
	}
	return argv
}

func main() {
	os.Args = rewriteDateShortcutArgs(os.Args)

	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
