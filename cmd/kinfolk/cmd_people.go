package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/store"

	"github.com/spf13/cobra"
)

func peopleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "people [name]",
		Short: "List people by birth year, or search them by name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var people []genealogy.Person
			if len(args) == 1 {
				people, err = a.Store.FindPersonByName(cmd.Context(), args[0])
			} else {
				people, err = a.Store.ListPeople(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("people: %w", err)
			}

			return render(cmd.OutOrStdout(), people, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "ID\tNAME\tFAMILY\tCONFIDENCE")
				for _, p := range people {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID, p.PrimaryName, orDash(p.FamilyName), p.Confidence)
				}
			})
		},
	}
}

func personCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "person <id>",
		Short: "Show a person with names, events, relationships and documents",
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

			d, err := a.Store.GetPersonDetail(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("person: %w", err)
			}

			return render(cmd.OutOrStdout(), d, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "%d\t%s\n", d.Person.ID, d.Person.PrimaryName)
				fmt.Fprintf(tw, "Family\t%s (%s)\n", orDash(d.Person.FamilyName), orDash(d.Person.FamilySide))
				fmt.Fprintf(tw, "Confidence\t%s\n", d.Person.Confidence)
				if d.Person.Notes != nil {
					fmt.Fprintf(tw, "Notes\t%s\n", truncate(*d.Person.Notes, 80))
				}
				for _, n := range d.Names {
					fmt.Fprintf(tw, "Name\t%s\t%s\n", n.Name, orDash(n.NameType))
				}
				for _, e := range d.Events {
					fmt.Fprintf(tw, "Event\t%s\t%s\t%s\n", e.EventType, orDash(e.Date), orDash(e.Place))
				}
				for _, r := range d.Relationships {
					fmt.Fprintf(tw, "Relationship\t%d -%s-> %d\n", r.SourcePersonID, r.RelationshipType, r.TargetPersonID)
				}
				for _, l := range d.Documents {
					fmt.Fprintf(tw, "Document\t%d\t%s\n", l.DocumentID, l.LinkType)
				}
			})
		},
	}
}

func familiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "families",
		Short: "List family groupings",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			families, err := a.Store.ListFamilies(cmd.Context())
			if err != nil {
				return fmt.Errorf("families: %w", err)
			}
			return render(cmd.OutOrStdout(), families, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "FAMILY\tSIDE\tPEOPLE")
				for _, f := range families {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", f.FamilyName, orDash(f.FamilySide), f.PersonCount)
				}
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <person-id> <family> [side]",
		Short: "Tag a person with a family name and side",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			side := ""
			if len(args) == 3 {
				side = args[2]
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Store.SetFamily(cmd.Context(), id, args[1], side); err != nil {
				return fmt.Errorf("families set: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Person %d is now in family %s\n", id, args[1])
			return nil
		},
	})
	return cmd
}

func treeCmd() *cobra.Command {
	var (
		graph bool
		depth int
	)

	cmd := &cobra.Command{
		Use:   "tree [person-id]",
		Short: "Show a person's parents, spouses and children, or the relationship graph",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if len(args) == 1 {
				var err error
				if id, err = parseID(args[0]); err != nil {
					return err
				}
			}
			if id == 0 && !graph {
				return fmt.Errorf("tree: a person id is required unless --graph is set")
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if graph {
				g, err := a.Store.GetTreeGraph(cmd.Context(), id, depth)
				if err != nil {
					return fmt.Errorf("tree: %w", err)
				}
				return render(cmd.OutOrStdout(), g, func(tw *tabwriter.Writer) {
					fmt.Fprintln(tw, "NODE\tNAME\tBORN")
					for _, n := range g.Nodes {
						fmt.Fprintf(tw, "%d\t%s\t%s\n", n.ID, n.Name, orDash(n.BirthDate))
					}
					fmt.Fprintln(tw, "\nSOURCE\tTYPE\tTARGET")
					for _, e := range g.Edges {
						fmt.Fprintf(tw, "%d\t%s\t%d\n", e.Source, e.Type, e.Target)
					}
				})
			}

			tree, err := a.Store.GetFamilyTree(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("tree: %w", err)
			}
			return render(cmd.OutOrStdout(), tree, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", tree.Person.Name, tree.Person.ID, orDash(tree.Person.BirthDate))
				section := func(label string, people []store.TreePerson) {
					for _, p := range people {
						fmt.Fprintf(tw, "  %s\t%d\t%s\t%s\n", label, p.ID, p.Name, orDash(p.BirthDate))
					}
				}
				section("parent", tree.Parents)
				section("spouse", tree.Spouses)
				section("child", tree.Children)
			})
		},
	}

	cmd.Flags().BoolVar(&graph, "graph", false, "print the relationship graph instead (whole graph without a person id)")
	cmd.Flags().IntVar(&depth, "depth", 2, "graph hops from the person")
	return cmd
}
