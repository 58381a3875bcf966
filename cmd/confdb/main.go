package main

import (
	"fmt"
	"os"
	"strings"

	"confdb/internal/app"
	"confdb/internal/config"
	"confdb/internal/database"
	"confdb/internal/database/migrations"
	"confdb/internal/transfer"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "ProjectImport").
func newApp(operation string) (*app.App, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// findProject resolves a project by name or id.
func findProject(a *app.App, nameOrID string) (string, string, error) {
	if p, err := a.Service().ProjectByName(nameOrID); err != nil {
		return "", "", err
	} else if p != nil {
		return p.ID, p.Name, nil
	}
	if p, err := a.Service().GetProject(nameOrID); err != nil {
		return "", "", err
	} else if p != nil {
		return p.ID, p.Name, nil
	}
	return "", "", fmt.Errorf("project %s does not exist", nameOrID)
}

var rootCmd = &cobra.Command{
	Use:   "confdb",
	Short: "Machine configuration database",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Database:  %s\n", cfg.Database.Type)
		fmt.Printf("Notifier:  %s\n", cfg.Notifier.Type)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the database schema",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		db, driver, err := database.OpenRawFromConfig(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := migrations.MigrateUp(db, driver); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		fmt.Println("Database schema is up to date.")
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the schema is current",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		db, driver, err := database.OpenRawFromConfig(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := migrations.CheckStatus(db, driver); err != nil {
			return err
		}
		fmt.Println("Database schema is up to date.")
		return nil
	},
}

// project command
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List visible projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ProjectList")
		if err != nil {
			return err
		}
		defer a.Close()

		projects, err := a.Service().AllProjects(a.User())
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects found.")
			return nil
		}

		for _, p := range projects {
			fmt.Printf("%-24s  %-12s  %-12s  %s\n",
				p.ID, p.Status, p.Owner, p.Name)
		}
		return nil
	},
}

var projectCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		editors, _ := cmd.Flags().GetStringSlice("editor")

		a, err := newApp("ProjectCreate")
		if err != nil {
			return err
		}
		defer a.Close()

		project, err := a.Service().CreateProject(a.User(), args[0], description, editors)
		if err != nil {
			return err
		}
		fmt.Printf("Created project %s (%s)\n", project.Name, project.ID)
		return nil
	},
}

var projectImportCmd = &cobra.Command{
	Use:   "import PROJECT FILE",
	Short: "Import devices from a CSV file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ProjectImport")
		if err != nil {
			return err
		}
		defer a.Close()

		projectID, projectName, err := findProject(a, args[0])
		if err != nil {
			return err
		}

		f, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("opening import file: %w", err)
		}
		defer f.Close()

		counter, err := transfer.ImportCSV(a.Service(), a.User(), projectID, f, a.Logger())
		if err != nil {
			return err
		}
		fmt.Println(transfer.StatusMessage(projectName, counter))
		return nil
	},
}

var projectExportCmd = &cobra.Command{
	Use:   "export PROJECT",
	Short: "Export project devices to CSV or XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp("ProjectExport")
		if err != nil {
			return err
		}
		defer a.Close()

		projectID, _, err := findProject(a, args[0])
		if err != nil {
			return err
		}

		out := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating export file: %w", err)
			}
			defer f.Close()
			out = f
		}

		if strings.HasSuffix(strings.ToLower(output), ".xlsx") {
			return transfer.ExportXLSX(a.Service(), projectID, out)
		}
		return transfer.ExportCSV(a.Service(), projectID, out)
	},
}

var projectChangesCmd = &cobra.Command{
	Use:   "changes PROJECT",
	Short: "View a project's change log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ProjectChanges")
		if err != nil {
			return err
		}
		defer a.Close()

		projectID, _, err := findProject(a, args[0])
		if err != nil {
			return err
		}

		changes, err := a.Service().ProjectChanges(projectID)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			fmt.Println("No changes recorded.")
			return nil
		}

		for _, c := range changes {
			fmt.Printf("%s  %-10s  %s.%s: %v -> %v\n",
				c.Time.Format("2006-01-02 15:04:05"), c.User, c.FC, c.Field, c.Previous, c.Value)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View project approval history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.Service().ApprovalHistory(limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No approvals recorded.")
			return nil
		}

		for _, r := range records {
			fmt.Printf("%s  %-30s  owner:%s  submitter:%s\n",
				r.Time.Format("2006-01-02 15:04:05"),
				r.ProjectName,
				r.Owner,
				r.Submitter,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)

	// project subcommands
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectCreateCmd)
	projectCreateCmd.Flags().StringP("description", "d", "", "Project description")
	projectCreateCmd.Flags().StringSlice("editor", nil, "Project editor (repeatable)")
	projectCmd.AddCommand(projectImportCmd)
	projectCmd.AddCommand(projectExportCmd)
	projectExportCmd.Flags().StringP("output", "o", "", "Output file (.csv or .xlsx; default stdout)")
	projectCmd.AddCommand(projectChangesCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of approvals to show")
}
