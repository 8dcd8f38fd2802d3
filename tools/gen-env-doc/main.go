//go:build ignore
// +build ignore

// Generates docs/environment.md and an env template from config.EnvSpecs().
//
//	go run ./tools/gen-env-doc -out docs
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ArkLabsHQ/bitswap/internal/config"
)

func main() {
	outDir := flag.String("out", "docs", "output directory")
	flag.Parse()

	specs := config.EnvSpecs()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fail(err)
	}
	if err := write(filepath.Join(*outDir, "environment.md"), markdown(specs)); err != nil {
		fail(err)
	}
	if err := write(filepath.Join(*outDir, "bitswap.env.example"), envTemplate(specs)); err != nil {
		fail(err)
	}
}

func markdown(specs []config.EnvVar) string {
	var b strings.Builder
	b.WriteString("# bitswapd environment\n\n")
	b.WriteString("Generated by `tools/gen-env-doc`, do not edit.\n\n")
	b.WriteString("| Variable | Default | Type | Description |\n")
	b.WriteString("|----------|---------|------|-------------|\n")
	for _, s := range specs {
		def := s.Default
		if def == "" {
			def = "-"
		}
		desc := s.Description
		if s.Notes != "" {
			desc += "<br/><em>" + s.Notes + "</em>"
		}
		fmt.Fprintf(&b, "| `%s` | `%s` | `%s` | %s |\n", s.FullName, def, s.Type, desc)
	}
	return b.String()
}

func envTemplate(specs []config.EnvVar) string {
	var b strings.Builder
	for _, s := range specs {
		fmt.Fprintf(&b, "# %s\n", s.Description)
		if s.Default == "" {
			fmt.Fprintf(&b, "# %s=\n\n", s.FullName)
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n\n", s.FullName, s.Default)
	}
	return b.String()
}

func write(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
