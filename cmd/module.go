package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/scriptdeck/internal"
	"github.com/frahmantamala/scriptdeck/internal/gate"
)

var (
	runAsRole string
	runParams []string
)

var moduleCmd = &cobra.Command{
	Use:   "module",
	Short: "Inspect and run registered modules",
}

var moduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered module, disabled ones included",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openDependencies(true)
		if err != nil {
			return err
		}
		defer deps.Close()

		modules, err := deps.Modules.ListAll(cmd.Context())
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"ID", "Name", "Executable", "Enabled", "Timeout", "Parameters"})
		for _, m := range modules {
			timeout := m.Timeout(deps.Config.Execution.DefaultTimeout, deps.Config.Execution.MaxTimeout)
			names := make([]string, 0, len(m.Parameters))
			for _, p := range m.Parameters {
				name := p.Name
				if p.Required {
					name += "*"
				}
				names = append(names, name)
			}
			t.AppendRow(table.Row{m.ID, m.Name, m.Executable, m.Enabled, timeout, strings.Join(names, ", ")})
		}
		t.Render()
		return nil
	},
}

var moduleRunCmd = &cobra.Command{
	Use:   "run <module-id>",
	Short: "Execute a module through the access gate as the given role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openDependencies(false)
		if err != nil {
			return err
		}
		defer deps.Close()

		ctx := cmd.Context()
		r, err := deps.Roles.Get(ctx, runAsRole)
		if err != nil {
			return fmt.Errorf("role %s: %w", runAsRole, err)
		}
		raw, err := parseParams(runParams)
		if err != nil {
			return err
		}

		caller := &internal.Identity{Username: "cli", RoleID: r.ID, RoleLevel: r.Level}
		res := deps.Gate.ExecuteModule(ctx, caller, args[0], raw)

		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = deps.Bus.Drain(drainCtx)

		return printResult(res)
	},
}

func init() {
	moduleRunCmd.Flags().StringVar(&runAsRole, "role", "admin", "role to execute as")
	moduleRunCmd.Flags().StringArrayVarP(&runParams, "param", "p", nil, "parameter as name=value, repeatable")

	moduleCmd.AddCommand(moduleListCmd)
	moduleCmd.AddCommand(moduleRunCmd)
}

// parseParams turns name=value pairs into raw parameters. Values stay
// strings; the validator coerces them to the declared type.
func parseParams(pairs []string) (map[string]interface{}, error) {
	raw := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected name=value", pair)
		}
		raw[strings.TrimSpace(name)] = value
	}
	return raw, nil
}

func printResult(res *gate.Result) error {
	if res.Output != "" {
		fmt.Print(res.Output)
		if !strings.HasSuffix(res.Output, "\n") {
			fmt.Println()
		}
	}
	if res.Truncated {
		fmt.Fprintln(os.Stderr, "[output truncated]")
	}
	if res.Success {
		return nil
	}
	if res.Stderr != "" {
		fmt.Fprint(os.Stderr, res.Stderr)
	}
	for _, ve := range res.ValidationErrors {
		fmt.Fprintf(os.Stderr, "%s: %s\n", ve.Field, ve.Message)
	}
	return fmt.Errorf("%s: %s", res.Status, res.Error)
}
