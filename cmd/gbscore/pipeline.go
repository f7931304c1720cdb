package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kpax-audio/gbscore/imports"
	"github.com/kpax-audio/gbscore/resolve"
	"github.com/kpax-audio/gbscore/score"
)

// compile parses sourcePath, resolves its imports, and runs the resolver,
// printing any warnings to stderr as one-line diagnostics.
func compile(sourcePath string) (*resolve.Song, error) {
	src, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sourcePath, err)
	}

	sc, warnings, err := score.Parse(string(src))
	if err != nil {
		return nil, err
	}
	printWarnings(warnings)

	if len(sc.Imports) > 0 {
		res, err := imports.Resolve(context.Background(), sc, imports.Options{
			BaseDir:   filepath.Dir(sourcePath),
			ReadLocal: os.ReadFile,
			Fetcher:   &imports.HTTPFetcher{},
		})
		if err != nil {
			return nil, err
		}
		sc.InstrumentNames = res.InstrumentNames
		sc.Instruments = res.Instruments
		printWarnings(res.Warnings)
	}

	song, warnings, err := resolve.Resolve(sc)
	if err != nil {
		return nil, err
	}
	printWarnings(warnings)

	return song, nil
}

func printWarnings(warnings []score.Warning) {
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w.String())
	}
}
