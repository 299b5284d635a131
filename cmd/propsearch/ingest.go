package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/config"
	"github.com/kailas-cloud/propsearch/internal/domain/record"
	corpusrepo "github.com/kailas-cloud/propsearch/internal/repository/corpus"
	"github.com/kailas-cloud/propsearch/internal/repository/qdrant"
	ingestuc "github.com/kailas-cloud/propsearch/internal/usecase/ingest"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		source, output, shape, idField, separator string
		fields                                    []string
		workers, batchSize                        int
		publish                                   bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed a source file and write the embedded artifact",
		Long: "Reads records (a JSON array) or sections (a JSON object), embeds the text of each\n" +
			"record and writes the records with their vectors to the artifact path.\n" +
			"Records that cannot be embedded are skipped and listed in the summary.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := &a.cfg.Corpus
			overrideString(cmd, "source", &c.Source, source)
			overrideString(cmd, "output", &c.Artifact, output)
			overrideString(cmd, "shape", &c.Shape, shape)
			overrideString(cmd, "id-field", &c.IDField, idField)
			overrideString(cmd, "separator", &c.Separator, separator)
			if cmd.Flags().Changed("fields") {
				c.Fields = fields
			}
			if workers > 0 {
				a.cfg.Ingest.Workers = workers
			}
			if batchSize > 0 {
				a.cfg.Ingest.BatchSize = batchSize
			}

			start := time.Now()
			summary, err := a.ingest(cmd, publish)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), summary, time.Since(start))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&source, "source", "", "override corpus.source")
	f.StringVarP(&output, "output", "o", "", "override corpus.artifact")
	f.StringVar(&shape, "shape", "", "source shape: records or sections")
	f.StringVar(&idField, "id-field", "", "attribute holding the record id")
	f.StringSliceVar(&fields, "fields", nil, "ordered text fields")
	f.StringVar(&separator, "separator", "", "separator between field values")
	f.IntVar(&workers, "workers", 0, "override ingest.workers")
	f.IntVar(&batchSize, "batch-size", 0, "override ingest.batch_size")
	f.BoolVar(&publish, "publish", false, "also upsert the embedded records into Qdrant")
	return cmd
}

func (a *app) ingest(cmd *cobra.Command, publish bool) (ingestuc.Summary, error) {
	ctx := cmd.Context()
	c := a.cfg.Corpus
	if c.Source == "" {
		return ingestuc.Summary{}, errors.New("no source given: set corpus.source or --source")
	}

	schema, err := schemaFromConfig(c)
	if err != nil {
		return ingestuc.Summary{}, err
	}

	emb, err := a.buildEmbedders(ctx)
	if err != nil {
		return ingestuc.Summary{}, err
	}

	var publisher ingestuc.Publisher
	if publish {
		if a.cfg.Qdrant.Addr == "" {
			return ingestuc.Summary{}, errors.New("--publish requires qdrant.addr")
		}
		sink, err := qdrant.New(a.cfg.Qdrant.Addr, a.cfg.Qdrant.Collection, a.logger)
		if err != nil {
			return ingestuc.Summary{}, fmt.Errorf("connect qdrant: %w", err)
		}
		defer func() {
			if err := sink.Close(); err != nil {
				a.logger.Warn("Close qdrant", zap.Error(err))
			}
		}()
		publisher = sink
	}

	repo := corpusrepo.New()
	svc := ingestuc.New(repo, repo, publisher, emb.document, ingestuc.Options{
		BatchSize: a.cfg.Ingest.BatchSize,
		Workers:   a.cfg.Ingest.Workers,
	}, a.logger)

	summary, err := svc.Run(ctx, ingestuc.Request{
		Source:  c.Source,
		Output:  c.Artifact,
		Schema:  schema,
		Publish: publish,
	})
	if err != nil {
		return summary, fmt.Errorf("ingest %s: %w", c.Source, err)
	}
	return summary, nil
}

func schemaFromConfig(c config.CorpusConfig) (record.Schema, error) {
	schema, err := record.NewSchema(record.Shape(c.Shape), c.IDField, c.Fields, c.Separator)
	if err != nil {
		return record.Schema{}, fmt.Errorf("text schema: %w", err)
	}
	return schema, nil
}

func overrideString(cmd *cobra.Command, flag string, dst *string, v string) {
	if cmd.Flags().Changed(flag) {
		*dst = v
	}
}

func printSummary(w io.Writer, s ingestuc.Summary, took time.Duration) {
	skipped := s.Skipped()
	fmt.Fprintf(w, "Embedded %d of %d records (%d dimensions) in %s\n",
		s.Embedded, s.Total, s.Dimension, took.Round(time.Millisecond))
	if s.Published {
		fmt.Fprintln(w, "Published to Qdrant")
	}
	if len(skipped) == 0 {
		return
	}
	fmt.Fprintf(w, "Skipped %d records:\n", len(skipped))
	for _, r := range skipped {
		fmt.Fprintf(w, "  %s: %s\n", r.ID(), r.Reason())
	}
}
