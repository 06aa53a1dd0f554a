package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/merge"
	"github.com/kinfolk-ai/kinfolk/pkg/reconcile"

	"github.com/spf13/cobra"
)

func duplicatesCmd() *cobra.Command {
	var minConfidence float64

	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "List likely duplicate people, strongest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("min-confidence") {
				cfg.Reconcile.MinConfidence = minConfidence
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			candidates, err := a.Finder.FindDuplicates(cmd.Context())
			if err != nil {
				return fmt.Errorf("duplicates: %w", err)
			}
			return render(cmd.OutOrStdout(), candidates, func(tw *tabwriter.Writer) {
				if len(candidates) == 0 {
					fmt.Fprintln(tw, "No duplicates found")
					return
				}
				fmt.Fprintln(tw, "KEEP\tMERGE\tCONFIDENCE\tREASONS")
				for _, c := range candidates {
					fmt.Fprintf(tw, "%d %s\t%d %s\t%.2f\t%s\n",
						c.PersonA, c.NameA, c.PersonB, c.NameB, c.Confidence, strings.Join(c.Reasons, "; "))
				}
			})
		},
	}

	cmd.Flags().Float64Var(&minConfidence, "min-confidence", reconcile.DefaultMinConfidence, "minimum confidence to report")
	return cmd
}

func mergeCmd() *cobra.Command {
	var (
		confidence   float64
		reasons      []string
		mergedBy     string
		linkCollapse string
		keepName     bool
	)

	cmd := &cobra.Command{
		Use:   "merge <keep-id> <merge-id>",
		Short: "Merge one person into another and delete the absorbed record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keepID, err := parseID(args[0])
			if err != nil {
				return err
			}
			mergeID, err := parseID(args[1])
			if err != nil {
				return err
			}

			opts := merge.MergeOptions{
				Reasons:                 reasons,
				MergedBy:                mergedBy,
				LinkCollapse:            merge.LinkCollapse(linkCollapse),
				KeepAbsorbedPrimaryName: keepName,
			}
			if cmd.Flags().Changed("confidence") {
				if opts.Confidence, err = genealogy.NewConfidence(confidence); err != nil {
					return err
				}
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Merger.Merge(cmd.Context(), keepID, mergeID, opts)
			if err != nil {
				return fmt.Errorf("merge: %w", err)
			}
			return render(cmd.OutOrStdout(), report, func(tw *tabwriter.Writer) {
				writeMergeReport(tw, report)
			})
		},
	}

	cmd.Flags().Float64Var(&confidence, "confidence", 0, "confidence recorded in the audit log")
	cmd.Flags().StringArrayVar(&reasons, "reason", nil, "reason recorded in the audit log, repeatable")
	cmd.Flags().StringVar(&mergedBy, "by", "cli", "who performed the merge")
	cmd.Flags().StringVar(&linkCollapse, "link-collapse", "", "document link collapse: document_type or document")
	cmd.Flags().BoolVar(&keepName, "keep-name", false, "keep the absorbed primary name as an alternate name")
	return cmd
}

func writeMergeReport(w io.Writer, r merge.MergeReport) {
	fmt.Fprintf(w, "Merged %d (%s) into %d\t%s\n", r.MergedID, r.MergedName, r.KeepID, r.PublicID)
	fmt.Fprintf(w, "Names copied\t%d\n", r.NamesCopied)
	fmt.Fprintf(w, "Events moved\t%d\n", r.EventsMoved)
	fmt.Fprintf(w, "Relationships moved\t%d\n", r.RelationshipsMoved)
	fmt.Fprintf(w, "Document links moved\t%d\n", r.DocumentLinksMoved)
	fmt.Fprintf(w, "Document links dropped\t%d\n", r.DocumentLinksDropped)
	if r.FamilyTransferred {
		fmt.Fprintln(w, "Family transferred\tyes")
	}
	for _, id := range r.SelfLoops {
		fmt.Fprintf(w, "Self relationship\t%d\n", id)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "Warning\t%s\n", warn)
	}
}

func mergesCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "merges",
		Short: "Show the merge audit log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.Store.ListMerges(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("merges: %w", err)
			}
			return render(cmd.OutOrStdout(), records, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "WHEN\tKEEP\tMERGED\tCONFIDENCE\tBY\tREASONS")
				for _, m := range records {
					fmt.Fprintf(tw, "%s\t%d\t%d %s\t%s\t%s\t%s\n",
						m.CreatedAt.Format("2006-01-02 15:04"), m.KeepID, m.MergedID, m.MergedName,
						m.Confidence, m.MergedBy, truncate(m.Reasons, 60))
				}
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries")
	return cmd
}

func reconcileCmd() *cobra.Command {
	var (
		auto      bool
		threshold float64
		maxMerges int
		mergedBy  string
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Walk duplicate candidates and merge the approved ones",
		Long: "Candidates are recomputed after every merge. With --auto, candidates at or above " +
			"--threshold merge without asking; the rest are shown for approval unless stdin is not a prompt.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			policy := reconcile.Policy{
				AutoApprove:   auto,
				AutoThreshold: threshold,
				MaxMerges:     maxMerges,
				MergedBy:      mergedBy,
				LinkCollapse:  merge.LinkCollapse(cfg.Merge.LinkCollapse),
				Approver:      promptApprover(cmd.InOrStdin(), cmd.OutOrStdout()),
			}

			run, err := a.Reconciler.Run(cmd.Context(), policy)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			return render(cmd.OutOrStdout(), run, func(tw *tabwriter.Writer) {
				for _, m := range run.Merges {
					writeMergeReport(tw, m)
				}
				fmt.Fprintf(tw, "Merged\t%d\n", len(run.Merges))
				fmt.Fprintf(tw, "Rejected\t%d\n", run.Rejected)
				fmt.Fprintf(tw, "Stale\t%d\n", run.Stale)
				fmt.Fprintf(tw, "Remaining candidates\t%d\n", run.Remaining)
			})
		},
	}

	cmd.Flags().BoolVar(&auto, "auto", false, "merge candidates at or above --threshold without asking")
	cmd.Flags().Float64Var(&threshold, "threshold", reconcile.DefaultAutoThreshold, "auto-approve threshold")
	cmd.Flags().IntVar(&maxMerges, "max", 0, "stop after this many merges (0 for no limit)")
	cmd.Flags().StringVar(&mergedBy, "by", "cli", "who performed the merges")
	return cmd
}

// promptApprover asks on out and reads y, n or q from in. End of input
// stops the run.
func promptApprover(in io.Reader, out io.Writer) reconcile.Approver {
	scanner := bufio.NewScanner(in)
	return func(ctx context.Context, c reconcile.Candidate) (bool, error) {
		for {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			fmt.Fprintf(out, "\n%d %s  <->  %d %s\n", c.PersonA, c.NameA, c.PersonB, c.NameB)
			fmt.Fprintf(out, "confidence %.2f: %s\n", c.Confidence, strings.Join(c.Reasons, "; "))
			if c.Veto {
				fmt.Fprintln(out, "warning: birth dates disagree")
			}
			fmt.Fprint(out, "merge? [y/n/q] ")

			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return false, err
				}
				return false, reconcile.ErrStop
			}
			switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
			case "y", "yes":
				return true, nil
			case "n", "no", "":
				return false, nil
			case "q", "quit":
				return false, reconcile.ErrStop
			}
		}
	}
}
