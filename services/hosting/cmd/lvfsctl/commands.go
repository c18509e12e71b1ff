package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lvfs/services/hosting"
)

func newRootCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lvfsctl",
		Short:         "Operator tool for the lvfs firmware hosting service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCommand(open))
	cmd.AddCommand(newVendorCommand(open))
	cmd.AddCommand(newHistoryCommand(open))
	cmd.AddCommand(newAuditCommand(open))
	return cmd
}

// withSession opens a session for the duration of fn.
func withSession(cmd *cobra.Command, open opener, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := open(ctx)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(ctx, s)
}

func newMigrateCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, open, func(ctx context.Context, s *session) error {
				if err := s.migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func newVendorCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendor",
		Short: "Vendor account operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newVendorBootstrapCommand(open))
	cmd.AddCommand(newVendorListCommand(open))
	cmd.AddCommand(newVendorAdminCommand(open, hosting.OpAdd, "Add a vendor"))
	cmd.AddCommand(newVendorAdminCommand(open, hosting.OpDisable, "Disable a vendor"))
	cmd.AddCommand(newVendorAdminCommand(open, hosting.OpRemove, "Remove a vendor with its firmware"))
	return cmd
}

func newVendorBootstrapCommand(open opener) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the master vendor carrying the signing contact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, open, func(ctx context.Context, s *session) error {
				v, err := s.hosting.Bootstrap(ctx, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "master vendor %q created\ntoken: %s\n", v.Name, v.GUID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "Signing", "Display name of the master vendor")
	return cmd
}

func newVendorListCommand(open opener) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List vendors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, open, func(ctx context.Context, s *session) error {
				vendors, err := s.hosting.Vendors(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), vendors)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TOKEN\tNAME\tCONTACT\tENABLED\tCREATED")
				for _, v := range vendors {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
						hosting.Redact(v.GUID), v.Name, v.Contact, v.Enabled, v.CreatedAt.UTC().Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newVendorAdminCommand(open opener, op hosting.Op, short string) *cobra.Command {
	var req hosting.AdminRequest
	req.Action = op

	cmd := &cobra.Command{
		Use:   string(op),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, open, func(ctx context.Context, s *session) error {
				out, err := s.hosting.Administer(ctx, req)
				if err != nil {
					return err
				}
				return printOutcome(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().StringVar(&req.MasterToken, "master", "", "Master vendor token")
	cmd.Flags().StringVar(&req.Target, "guid", "", "Target vendor token")
	_ = cmd.MarkFlagRequired("master")
	if op == hosting.OpAdd {
		cmd.Flags().StringVar(&req.Name, "name", "", "Vendor display name")
		cmd.Flags().StringVar(&req.Contact, "contact", "", "Vendor contact address")
	} else {
		_ = cmd.MarkFlagRequired("guid")
	}
	return cmd
}

func newHistoryCommand(open opener) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the upload history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, open, func(ctx context.Context, s *session) error {
				entries, err := s.hosting.History(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tUPLOADED\tVENDOR\tFILENAME\tCHECKSUM")
				for _, e := range entries {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
						e.ID, e.CreatedAt.UTC().Format(time.RFC3339), e.VendorName, e.Filename, e.Checksum)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newAuditCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit log operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Print the most recent audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, open, func(ctx context.Context, s *session) error {
				entries, err := s.audit(ctx, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tAT\tACTION\tACTOR\tOBJECT")
				for _, e := range entries {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
						e.ID, e.At.UTC().Format(time.RFC3339), e.Action, e.Actor, e.Object)
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "Maximum number of entries")

	cmd.AddCommand(list)
	return cmd
}

// printOutcome writes one line per check and fails the command when any
// check failed.
func printOutcome(w io.Writer, out *hosting.Outcome) error {
	for _, res := range out.Results() {
		mark := "ok"
		if !res.Passed {
			mark = "FAILED"
		}
		fmt.Fprintf(w, "%-10s %s\n", res.Check, mark)
	}
	if out.Token != "" {
		fmt.Fprintf(w, "token: %s\n", out.Token)
	}
	if !out.OK() {
		return fmt.Errorf("%s rejected", out.Op)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
