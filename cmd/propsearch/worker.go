package main

import (
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/propsearch/internal/transport/stdio"
)

func newWorkerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Embed line-delimited JSON requests from stdin",
		Long: "Reads one {\"text\": ...} object per line from stdin and writes one\n" +
			"{\"embedding\": [...]} or {\"error\": \"...\"} object per line to stdout.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			emb, err := a.buildEmbedders(ctx)
			if err != nil {
				return err
			}
			return stdio.NewWorker(emb.raw, a.logger).Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout()) //nolint:wrapcheck // top level
		},
	}
}
