package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/scriptdeck/internal"
	"github.com/frahmantamala/scriptdeck/internal/catalog"
	"github.com/frahmantamala/scriptdeck/internal/role"
	"github.com/frahmantamala/scriptdeck/internal/user"
)

var (
	seedCatalogPath   string
	seedAdminUsername string
	seedAdminPassword string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed built-in roles, the first administrator and the module catalog",
	Long: `Create the built-in roles, an administrator account and the modules and
grants described in the catalog file. Safe to run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openDependencies(false)
		if err != nil {
			return err
		}
		defer deps.Close()
		return seed(cmd.Context(), deps)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedCatalogPath, "catalog", "catalog.yml", "catalog file with modules and grants")
	seedCmd.Flags().StringVar(&seedAdminUsername, "admin-username", "admin", "administrator account to create")
	seedCmd.Flags().StringVar(&seedAdminPassword, "admin-password", os.Getenv("SCRIPTDECK_ADMIN_PASSWORD"), "administrator password (defaults to $SCRIPTDECK_ADMIN_PASSWORD)")
}

func seed(ctx context.Context, deps *Dependencies) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := deps.Logger

	if err := deps.Roles.EnsureBuiltIns(ctx); err != nil {
		return fmt.Errorf("seed built-in roles: %w", err)
	}

	if seedAdminPassword != "" {
		_, err := deps.Users.Create(ctx, &user.CreateUserDTO{
			Username:    seedAdminUsername,
			DisplayName: "Administrator",
			Password:    seedAdminPassword,
			RoleID:      role.Admin,
		})
		switch {
		case err == nil:
			fmt.Println("Seeded administrator:", seedAdminUsername)
		case errors.Is(err, internal.ErrUserExists):
			fmt.Println("administrator already exists:", seedAdminUsername)
		default:
			return fmt.Errorf("seed administrator: %w", err)
		}
	} else {
		log.Warn("no administrator password given, skipping administrator account")
	}

	if _, err := os.Stat(seedCatalogPath); errors.Is(err, os.ErrNotExist) {
		log.Warn("catalog file not found, skipping modules", "path", seedCatalogPath)
		return nil
	}
	f, err := catalog.Load(seedCatalogPath)
	if err != nil {
		return err
	}
	sum, err := catalog.Apply(ctx, f, deps.Modules, deps.Roles, log)
	if err != nil {
		return err
	}
	fmt.Printf("Catalog applied: %d roles created, %d modules created, %d modules updated, %d grants\n",
		sum.RolesCreated, sum.ModulesCreated, sum.ModulesUpdated, sum.Grants)
	return nil
}
