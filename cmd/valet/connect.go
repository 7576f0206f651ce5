package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openvalet/valet/internal/config"
	"github.com/openvalet/valet/internal/db"
	"github.com/openvalet/valet/internal/models"
	"github.com/openvalet/valet/internal/smartcar"
	"github.com/openvalet/valet/internal/store"
)

const exchangeTimeout = 30 * time.Second

func newConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Link vehicles through the Smartcar OAuth flow",
	}
	cmd.AddCommand(newConnectURLCmd())
	cmd.AddCommand(newConnectExchangeCmd())
	return cmd
}

func newConnectURLCmd() *cobra.Command {
	var configPath string
	var chatUserID string

	cmd := &cobra.Command{
		Use:   "url",
		Short: "Print the authorization URL for a chat user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			auth, err := smartcar.NewAuth(smartcar.AuthOpts{Smartcar: cfg.Smartcar})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), auth.AuthURL(chatUserID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "valet.yaml", "path to Valet config file")
	cmd.Flags().StringVarP(&chatUserID, "user", "u", "", "chat user id (platform:id) the link is for")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newConnectExchangeCmd() *cobra.Command {
	var configPath string
	var chatUserID string
	var code string

	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Redeem an authorization code and store the user's vehicles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			gdb, err := db.Connect(cfg.DB)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			if err := db.AutoMigrate(gdb); err != nil {
				return err
			}
			st, err := store.New(gdb)
			if err != nil {
				return err
			}
			auth, err := smartcar.NewAuth(smartcar.AuthOpts{Smartcar: cfg.Smartcar})
			if err != nil {
				return err
			}
			client, err := smartcar.NewClient(smartcar.ClientOpts{Auth: auth})
			if err != nil {
				return err
			}
			return runConnectExchange(cmd, st, auth, client, chatUserID, code)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "valet.yaml", "path to Valet config file")
	cmd.Flags().StringVarP(&chatUserID, "user", "u", "", "chat user id (platform:id) that started the flow")
	cmd.Flags().StringVar(&code, "code", "", "authorization code from the redirect")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

// runConnectExchange redeems the code, enumerates the granted vehicles and
// stores each with the shared credential. Vehicles already linked just get
// their credential rotated.
func runConnectExchange(cmd *cobra.Command, st *store.Store, auth *smartcar.Auth, client *smartcar.Client, chatUserID, code string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	user, err := st.GetOrCreateUser(store.Identity{ChatUserID: chatUserID})
	if err != nil {
		return err
	}

	cred, err := auth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}

	ids, err := client.Vehicles(ctx, cred.AccessToken)
	if err != nil {
		return fmt.Errorf("list vehicles: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No vehicles were granted.")
		return nil
	}

	out := cmd.OutOrStdout()
	for _, id := range ids {
		attrs, err := client.VehicleAttributes(ctx, cred.AccessToken, id)
		if err != nil {
			return fmt.Errorf("fetch attributes for %s: %w", id, err)
		}

		vehicle, err := st.VehicleByExternalID(id)
		if err != nil {
			return fmt.Errorf("look up vehicle %s: %w", id, err)
		}
		if vehicle == nil {
			vehicle = &models.Vehicle{
				UserID:     user.ID,
				ExternalID: id,
				Make:       attrs.Make,
				Model:      attrs.Model,
				Year:       attrs.Year,
				Status:     models.VehicleActive,
			}
			if err := st.CreateVehicle(vehicle); err != nil {
				return fmt.Errorf("store vehicle %s: %w", id, err)
			}
		} else if vehicle.Status != models.VehicleActive {
			if err := st.UpdateVehicleStatus(vehicle.ID, models.VehicleActive); err != nil {
				return fmt.Errorf("reactivate vehicle %s: %w", id, err)
			}
		}
		if err := st.UpdateVehicleCredential(vehicle.ID, cred.AccessToken, cred.RefreshToken, cred.Expiry); err != nil {
			return fmt.Errorf("store credential for %s: %w", id, err)
		}
		fmt.Fprintf(out, "Linked %s (%s)\n", vehicle.DisplayName(), id)
	}
	fmt.Fprintf(out, "%d vehicle(s) linked to %s\n", len(ids), chatUserID)
	return nil
}
