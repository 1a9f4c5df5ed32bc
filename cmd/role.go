package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/scriptdeck/internal/role"
)

var grantDescription string

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Inspect roles and manage their module grants",
}

var roleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List roles with their direct grants and effective modules",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openDependencies(true)
		if err != nil {
			return err
		}
		defer deps.Close()

		ctx := cmd.Context()
		roles, err := deps.Roles.List(ctx)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Role", "Level", "Built-in", "Granted", "Effective"})
		for _, r := range roles {
			granted := make([]string, 0, len(r.Permissions))
			for _, p := range r.Permissions {
				granted = append(granted, p.ModuleID)
			}
			effective, err := deps.Resolver.AccessibleModules(ctx, r.ID)
			if err != nil {
				return err
			}
			t.AppendRow(table.Row{r.ID, r.Level, r.BuiltIn, strings.Join(granted, ", "), strings.Join(effective, ", ")})
		}
		t.Render()
		return nil
	},
}

var roleGrantCmd = &cobra.Command{
	Use:   "grant <role-id> <module-id>",
	Short: "Allow a role to execute a module",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openDependencies(false)
		if err != nil {
			return err
		}
		defer deps.Close()

		r, err := deps.Roles.GrantPermission(cmd.Context(), args[0], &role.GrantPermissionDTO{
			ModuleID:    args[1],
			Description: grantDescription,
		})
		if err != nil {
			return err
		}
		fmt.Printf("granted %s to %s (%d direct grants)\n", args[1], r.ID, len(r.Permissions))
		return nil
	},
}

var roleRevokeCmd = &cobra.Command{
	Use:   "revoke <role-id> <module-id>",
	Short: "Remove a module grant from a role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openDependencies(false)
		if err != nil {
			return err
		}
		defer deps.Close()

		r, err := deps.Roles.RevokePermission(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("revoked %s from %s (%d direct grants)\n", args[1], r.ID, len(r.Permissions))
		return nil
	},
}

func init() {
	roleGrantCmd.Flags().StringVar(&grantDescription, "description", "", "note stored with the grant")

	roleCmd.AddCommand(roleListCmd)
	roleCmd.AddCommand(roleGrantCmd)
	roleCmd.AddCommand(roleRevokeCmd)
}
