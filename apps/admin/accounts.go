package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/homeroom/core/account"
	"github.com/trezcool/homeroom/core/tenancy"
)

var errInvalidID = errors.New("--id must be a valid account id")

func (cli *commandLine) accountsCmd() *cobra.Command {
	return groupCmd("accounts", "Manage accounts",
		cli.grantAdminCmd(),
		cli.setRoleCmd(),
		cli.setActiveCmd("deactivate", "Deactivate an account, platform accounts included", false),
		cli.setActiveCmd("reactivate", "Reactivate an account", true),
	)
}

func (cli *commandLine) grantAdminCmd() *cobra.Command {
	var na account.NewPlatformAccount
	cmd := &cobra.Command{
		Use:   "grant-admin",
		Short: "Create or promote a platform administrator",
		Long: `Create or promote a platform administrator.

The account is matched on the identity provider subject; it is created when unknown.

Examples:
  admin accounts grant-admin --subject auth0|123 --email ops@homeroom.test --role super_admin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := na.Validate(cli.validate); err != nil {
				return err
			}
			acc, err := cli.accounts.GrantPlatformRole(cmd.Context(), na)
			if err != nil {
				return err
			}
			cli.printAccount(acc)
			return nil
		},
	}
	cmd.Flags().StringVar(&na.Subject, "subject", "", "identity provider subject (required)")
	cmd.Flags().StringVar(&na.Email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&na.Name, "name", "", "display name, defaults to the email")
	cmd.Flags().StringVar(&na.Role, "role", string(tenancy.RoleSupportAdmin), "super_admin or support_admin")
	return cmd
}

func (cli *commandLine) setRoleCmd() *cobra.Command {
	var (
		id string
		sr account.SetRole
	)
	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Set the role of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accID, err := parseID(id)
			if err != nil {
				return err
			}
			if err = sr.Validate(cli.validate); err != nil {
				return err
			}
			acc, err := cli.accounts.SetRole(cmd.Context(), accID, tenancy.Role(sr.Role))
			if err != nil {
				return err
			}
			cli.printAccount(acc)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "account id (required)")
	cmd.Flags().StringVar(&sr.Role, "role", "", "one of: "+tenancy.AnyMember.String())
	return cmd
}

func (cli *commandLine) setActiveCmd(use, short string, active bool) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accID, err := parseID(id)
			if err != nil {
				return err
			}
			var acc account.Account
			if active {
				acc, err = cli.accounts.Reactivate(cmd.Context(), accID)
			} else {
				acc, err = cli.accounts.Suspend(cmd.Context(), accID)
			}
			if err != nil {
				return err
			}
			cli.printAccount(acc)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "account id (required)")
	return cmd
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errInvalidID
	}
	return id, nil
}

func (cli *commandLine) printAccount(acc account.Account) {
	tenantID := "-"
	if acc.TenantID.Valid {
		tenantID = acc.TenantID.UUID.String()
	}
	fmt.Fprintf(cli.out, "%s  %s  role=%s  tenant=%s  active=%t\n", acc.ID, acc.Email, acc.Role, tenantID, acc.IsActive)
}
