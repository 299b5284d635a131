package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/propsearch/internal/domain/search/result"
	corpusrepo "github.com/kailas-cloud/propsearch/internal/repository/corpus"
	searchuc "github.com/kailas-cloud/propsearch/internal/usecase/search"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		k        int
		artifact string
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Print the records closest to a free-text query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if artifact != "" {
				a.cfg.Corpus.Artifact = artifact
			}
			ctx := cmd.Context()

			emb, err := a.buildEmbedders(ctx)
			if err != nil {
				return err
			}
			svc := searchuc.New(emb.query, searchuc.Options{
				DefaultK: a.cfg.Search.DefaultK,
				MaxK:     a.cfg.Search.MaxK,
			}, a.logger)
			if err := svc.LoadArtifact(ctx, corpusrepo.New(), a.cfg.Corpus.Artifact); err != nil {
				return err //nolint:wrapcheck // already wrapped by the service
			}

			matches, err := svc.FindBestMatch(ctx, strings.Join(args, " "), k)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			printMatches(cmd.OutOrStdout(), matches)
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of matches (default: search.default_k)")
	cmd.Flags().StringVar(&artifact, "artifact", "", "override corpus.artifact")
	return cmd
}

func printMatches(w io.Writer, matches []result.Match) {
	for i, m := range matches {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if len(matches) == 1 {
			fmt.Fprintln(w, "Best match:")
		} else {
			fmt.Fprintf(w, "#%d:\n", i+1)
		}
		fmt.Fprintf(w, "ID: %s\n", m.ID())
		fmt.Fprintf(w, "Text: %s\n", m.Record().Text())
		fmt.Fprintf(w, "Similarity distance: %g\n", m.Distance())
	}
}
