package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"chainstats/internal/storage"
)

// Show prints recent samples for one source.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	source, err := parseSource(opts.Source)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show samples")
	}
	defer closeStore()

	samples, err := store.ListRecentSamples(ctx, source, opts.Limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSource\tPayload")

	for _, sample := range samples {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\n",
			sample.CreatedAt.UTC().Format(time.RFC3339),
			sample.Source,
			truncateInline(string(sample.Payload), 120),
		)
	}

	writer.Flush()
	return nil
}

func parseSource(v string) (storage.Source, error) {
	switch storage.Source(v) {
	case storage.SourceBlockchain:
		return storage.SourceBlockchain, nil
	case storage.SourcePrice:
		return storage.SourcePrice, nil
	default:
		return "", fmt.Errorf("unknown source %q (expected blockchain or price)", v)
	}
}

func truncateInline(v string, max int) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	if len(cleaned) > max {
		return cleaned[:max] + "..."
	}
	return cleaned
}
