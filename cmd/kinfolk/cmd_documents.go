package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"

	"github.com/spf13/cobra"
)

func documentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "List, add, tag and delete document pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			sources, err := a.Store.ListDocumentSources(cmd.Context())
			if err != nil {
				return fmt.Errorf("documents: %w", err)
			}
			return render(cmd.OutOrStdout(), sources, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "ID\tSOURCE\tPAGE\tTYPE")
				for _, src := range sources {
					for _, p := range src.Pages {
						fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", p.ID, src.Source, p.Page, orDash(p.DocumentType))
					}
				}
			})
		},
	}

	cmd.AddCommand(documentsAddCmd(), documentsTypeCmd(), deleteDocumentCmd())
	return cmd
}

func documentsAddCmd() *cobra.Command {
	var (
		source  string
		page    int
		ocrFile string
		docType string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a document page, skipping it if source and page already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if ocrFile != "" {
				raw, err := os.ReadFile(ocrFile)
				if err != nil {
					return fmt.Errorf("documents add: reading OCR text: %w", err)
				}
				text = string(raw)
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			doc, created, err := a.Store.AddDocument(cmd.Context(), genealogy.Document{
				Source:       source,
				Page:         page,
				OCRText:      text,
				DocumentType: genealogy.StringPtr(docType),
			})
			if err != nil {
				return fmt.Errorf("documents add: %w", err)
			}
			return render(cmd.OutOrStdout(), doc, func(tw *tabwriter.Writer) {
				if created {
					fmt.Fprintf(tw, "Added document %d (%s page %d)\n", doc.ID, doc.Source, doc.Page)
				} else {
					fmt.Fprintf(tw, "Document %d already exists (%s page %d)\n", doc.ID, doc.Source, doc.Page)
				}
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "source file path")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().StringVar(&ocrFile, "ocr-file", "", "file holding the page's OCR text")
	cmd.Flags().StringVar(&docType, "type", "", "document type, e.g. census or birth_certificate")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func documentsTypeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-type <document-id> <type>",
		Short: "Tag a document page with its type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Store.SetDocumentType(cmd.Context(), id, args[1]); err != nil {
				return fmt.Errorf("documents set-type: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Document %d tagged as %s\n", id, args[1])
			return nil
		},
	}
}

func deleteDocumentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete every page of a document's source and the facts only it supports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Store.DeleteDocument(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("documents delete: %w", err)
			}
			return render(cmd.OutOrStdout(), report, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "Deleted %s\n", report.Source)
				fmt.Fprintf(tw, "Pages\t%d\n", report.PagesDeleted)
				fmt.Fprintf(tw, "People deleted\t%d\n", report.PeopleDeleted)
				fmt.Fprintf(tw, "People retained\t%d\n", report.PeopleRetained)
				fmt.Fprintf(tw, "Events\t%d\n", report.EventsDeleted)
				fmt.Fprintf(tw, "Relationships\t%d\n", report.RelationshipsDeleted)
				for _, w := range report.Warnings {
					fmt.Fprintf(tw, "Warning\t%s\n", w)
				}
			})
		},
	}
}
