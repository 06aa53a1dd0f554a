package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/kinfolk-ai/kinfolk/internal/storage"
	"github.com/kinfolk-ai/kinfolk/pkg/gedcom"

	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	var (
		output string
		s3Key  string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the tree as GEDCOM 5.5.1",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.Store.GetSnapshot(ctx)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			var buf bytes.Buffer
			if err := gedcom.Write(&buf, snap); err != nil {
				return fmt.Errorf("export: writing GEDCOM: %w", err)
			}

			if s3Key != "" {
				if !cfg.S3.Enabled() {
					return fmt.Errorf("export: --s3-key needs s3.bucket to be configured")
				}
				client, err := storage.NewS3Client(ctx, cfg.S3)
				if err != nil {
					return fmt.Errorf("export: %w", err)
				}
				if err := client.PutFile(ctx, s3Key, bytes.NewReader(buf.Bytes())); err != nil {
					return fmt.Errorf("export: uploading: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Uploaded %d people to s3://%s/%s\n", len(snap.People), cfg.S3.Bucket, s3Key)
				if !cmd.Flags().Changed("out") {
					return nil
				}
			}

			var w io.Writer
			if output == "" || output == "-" {
				w = cmd.OutOrStdout()
			} else {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("export: creating output file: %w", err)
				}
				defer func() { _ = f.Close() }()
				w = f
			}
			if _, err := w.Write(buf.Bytes()); err != nil {
				return fmt.Errorf("export: %w", err)
			}

			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d people to %s\n", len(snap.People), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "out", "-", "output file path (- for stdout)")
	cmd.Flags().StringVar(&s3Key, "s3-key", "", "upload the export to this key in the configured bucket")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.Store.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			return render(cmd.OutOrStdout(), stats, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "Documents\t%d\n", stats.Documents)
				fmt.Fprintf(tw, "People\t%d\n", stats.People)
				fmt.Fprintf(tw, "Names\t%d\n", stats.Names)
				fmt.Fprintf(tw, "Events\t%d\n", stats.Events)
				fmt.Fprintf(tw, "Relationships\t%d\n", stats.Relationships)
				fmt.Fprintf(tw, "Document links\t%d\n", stats.DocumentLinks)
				fmt.Fprintf(tw, "Merges\t%d\n", stats.Merges)
			})
		},
	}
}
