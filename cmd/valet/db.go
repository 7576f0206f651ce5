package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openvalet/valet/internal/config"
	"github.com/openvalet/valet/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Valet database",
		Long:  "Connects to the configured database and creates all tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "valet.yaml", "path to Valet config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gdb, err := db.Connect(cfg.DB)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	fmt.Fprintf(out, "Connected to %s database\n", cfg.DB.Driver)

	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	return nil
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			gdb, err := db.Connect(cfg.DB)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			if err := db.AutoMigrate(gdb); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date\n")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "valet.yaml", "path to Valet config file")
	return cmd
}

func newDBResetCmd() *cobra.Command {
	var configPath string
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate all tables",
		Long:  "Destroys all stored users, vehicles, conversations and credentials, then recreates the empty schema.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, force)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "valet.yaml", "path to Valet config file")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, force bool) error {
	out := cmd.OutOrStdout()

	if !force {
		fmt.Fprintf(out, "This deletes ALL Valet data, including vehicle credentials. Type 'yes' to continue: ")
		reader := bufio.NewReader(cmd.InOrStdin())
		answer, _ := reader.ReadString('\n')
		if strings.TrimSpace(answer) != "yes" {
			fmt.Fprintf(out, "Aborted\n")
			return nil
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Connect(cfg.DB)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := db.Reset(gdb); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database reset\n")
	return nil
}
