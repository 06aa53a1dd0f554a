package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/kinfolk-ai/kinfolk/internal/queue"

	"github.com/spf13/cobra"
)

func ingestCmd() *cobra.Command {
	var (
		documentID int64
		source     string
		page       int
		ocrFile    string
		docType    string
		family     string
		side       string
		autoMerge  bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <result.json|->",
		Short: "Store an extractor result for a document page",
		Long: "Stores the people, events and relationships of one page's extraction result. " +
			"The page is created from --source and --page unless --document-id names an existing one. " +
			"An auto-merge pass follows unless disabled.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("ingest: reading result: %w", err)
			}

			msg := queue.ExtractionMsg{
				DocumentID:   documentID,
				Source:       source,
				Page:         page,
				DocumentType: docType,
				Result:       raw,
				FamilyName:   family,
				FamilySide:   side,
			}
			if ocrFile != "" {
				text, err := os.ReadFile(ocrFile)
				if err != nil {
					return fmt.Errorf("ingest: reading OCR text: %w", err)
				}
				msg.OCRText = string(text)
			}
			if cmd.Flags().Changed("auto-merge") {
				msg.AutoMerge = &autoMerge
			}
			if documentID == 0 && source == "" {
				return fmt.Errorf("ingest: --document-id or --source is required")
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			p := &queue.Processor{App: a}
			res, err := p.Ingest(cmd.Context(), msg)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			return render(cmd.OutOrStdout(), res, func(tw *tabwriter.Writer) {
				x := res.Extraction
				fmt.Fprintf(tw, "Document\t%d\n", x.DocumentID)
				if x.AlreadyStored {
					fmt.Fprintln(tw, "Extraction\talready stored, nothing written")
				}
				fmt.Fprintf(tw, "People created\t%d\n", x.PeopleCreated)
				fmt.Fprintf(tw, "People matched\t%d\n", x.PeopleMatched)
				fmt.Fprintf(tw, "Names\t%d\n", x.Names)
				fmt.Fprintf(tw, "Events\t%d\n", x.Events)
				fmt.Fprintf(tw, "Relationships\t%d\n", x.Relationships)
				switch {
				case res.Deferred:
					fmt.Fprintln(tw, "Auto-merge\tskipped, another run holds the lock")
				case res.Reconcile != nil:
					fmt.Fprintf(tw, "Auto-merged\t%d\n", len(res.Reconcile.Merges))
				}
				for _, w := range res.Warnings {
					fmt.Fprintf(tw, "Warning\t%s\n", w)
				}
			})
		},
	}

	cmd.Flags().Int64Var(&documentID, "document-id", 0, "existing document page id")
	cmd.Flags().StringVar(&source, "source", "", "source file path of the page")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().StringVar(&ocrFile, "ocr-file", "", "file holding the page's OCR text")
	cmd.Flags().StringVar(&docType, "type", "", "document type")
	cmd.Flags().StringVar(&family, "family", "", "family name to tag created people with")
	cmd.Flags().StringVar(&side, "side", "", "family side, e.g. paternal or maternal")
	cmd.Flags().BoolVar(&autoMerge, "auto-merge", true, "run an auto-approve reconcile pass afterwards")
	return cmd
}
