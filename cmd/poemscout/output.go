package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperifyio/poemscout/internal/app"
	"github.com/hyperifyio/poemscout/internal/store"
)

const noNewPoemMessage = "No new poems found or all poems already stored."

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func renderScout(w io.Writer, format string, res app.ScoutResult) error {
	if format == "json" {
		return writeJSON(w, res)
	}
	if !res.Found {
		_, err := fmt.Fprintln(w, noNewPoemMessage)
		return err
	}
	_, err := fmt.Fprintf(w, "Poet: %s\nSource: %s (%s)\n\n%s\n", res.Poet, res.SourceURL, res.Source, res.Poem)
	return err
}

func renderCount(w io.Writer, format, poet string, n int) error {
	if format == "json" {
		return writeJSON(w, map[string]any{"poet": poet, "count": n})
	}
	_, err := fmt.Fprintf(w, "%s: %d poems stored\n", poet, n)
	return err
}

func renderList(w io.Writer, format, poet string, recs []store.PoemRecord) error {
	if format == "json" {
		if recs == nil {
			recs = []store.PoemRecord{}
		}
		return writeJSON(w, recs)
	}
	if len(recs) == 0 {
		_, err := fmt.Fprintf(w, "No poems stored for %s.\n", poet)
		return err
	}
	for i, r := range recs {
		if i > 0 {
			if _, err := fmt.Fprintln(w, "\n---"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "#%d  %s\n\n%s\n", r.ID, r.SourceURL, r.PoemText); err != nil {
			return err
		}
	}
	return nil
}

func renderVersion(w io.Writer, format string) error {
	if format == "json" {
		return writeJSON(w, map[string]string{
			"version": app.BuildVersion,
			"commit":  app.BuildCommit,
			"date":    app.BuildDate,
		})
	}
	_, err := fmt.Fprintf(w, "poemscout %s (commit %s, built %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
	return err
}
