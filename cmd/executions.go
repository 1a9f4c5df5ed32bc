package cmd

import (
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/scriptdeck/internal/execution"
)

var executionsFilter execution.ListFilter

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "Show recent module executions from the audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openDependencies(true)
		if err != nil {
			return err
		}
		defer deps.Close()

		records, err := deps.Executions.ListRecent(cmd.Context(), executionsFilter)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Started", "Module", "Role", "User", "Status", "Exit", "Elapsed ms", "Error"})
		for _, rec := range records {
			exit := "-"
			if rec.ExitCode != nil {
				exit = strconv.Itoa(*rec.ExitCode)
			}
			t.AppendRow(table.Row{
				rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
				rec.ModuleID, rec.RoleID, rec.UserID, rec.Status, exit, rec.ElapsedMs, rec.ErrorMessage,
			})
		}
		t.Render()
		return nil
	},
}

func init() {
	executionsCmd.Flags().StringVar(&executionsFilter.ModuleID, "module", "", "only this module")
	executionsCmd.Flags().Int64Var(&executionsFilter.UserID, "user", 0, "only this user id")
	executionsCmd.Flags().IntVarP(&executionsFilter.Limit, "limit", "n", 20, "number of records")
}
