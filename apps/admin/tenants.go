package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/trezcool/homeroom/core/tenancy"
)

func (cli *commandLine) tenantsCmd() *cobra.Command {
	orphans := &cobra.Command{
		Use:   "orphans",
		Short: "List tenants left without member accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.listOrphans(cmd)
		},
	}
	return groupCmd("tenants", "Inspect tenants", orphans)
}

func (cli *commandLine) listOrphans(cmd *cobra.Command) error {
	tenants, err := cli.tenants.Orphans(cmd.Context(), tenancy.PlatformAmbient(tenancy.RoleSuperAdmin))
	if err != nil {
		return err
	}
	if len(tenants) == 0 {
		fmt.Fprintln(cli.out, "no orphan tenants")
		return nil
	}

	w := tabwriter.NewWriter(cli.out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tCREATED")
	for _, t := range tenants {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Status, t.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
