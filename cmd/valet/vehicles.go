package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openvalet/valet/internal/config"
	"github.com/openvalet/valet/internal/db"
	"github.com/openvalet/valet/internal/store"
)

func newVehiclesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "vehicles",
		Short: "List all linked vehicles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			gdb, err := db.Connect(cfg.DB)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			st, err := store.New(gdb)
			if err != nil {
				return err
			}
			return runVehicles(cmd, st)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "valet.yaml", "path to Valet config file")
	return cmd
}

func runVehicles(cmd *cobra.Command, st *store.Store) error {
	vehicles, err := st.AllVehicles()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(vehicles) == 0 {
		fmt.Fprintln(out, "No vehicles linked.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVEHICLE\tSTATUS\tOWNER\tEXTERNAL ID")
	for _, v := range vehicles {
		owner := v.User.ChatUserID
		if owner == "" {
			owner = fmt.Sprintf("user %d", v.UserID)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", v.ID, v.DisplayName(), v.Status, owner, v.ExternalID)
	}
	return w.Flush()
}
