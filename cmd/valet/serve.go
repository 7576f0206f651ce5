package main

import (
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openvalet/valet/internal/assist"
	"github.com/openvalet/valet/internal/bot"
	"github.com/openvalet/valet/internal/bot/discord"
	"github.com/openvalet/valet/internal/bot/slack"
	"github.com/openvalet/valet/internal/bot/telegram"
	"github.com/openvalet/valet/internal/config"
	"github.com/openvalet/valet/internal/dashboard"
	"github.com/openvalet/valet/internal/db"
	"github.com/openvalet/valet/internal/llm"
	"github.com/openvalet/valet/internal/smartcar"
	"github.com/openvalet/valet/internal/store"
	"github.com/openvalet/valet/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Valet assistant daemon",
		Long:  "Connects to the configured chat platform and serves conversational vehicle control until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "valet.yaml", "path to Valet config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

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
	api := smartcar.NewAPI(auth, client)

	creds, err := assist.NewCredentialManager(st, api)
	if err != nil {
		return err
	}
	builder, err := assist.NewContextBuilder(assist.ContextBuilderOpts{
		Store:       st,
		API:         api,
		Credentials: creds,
		Fanout:      cfg.Assistant.ContextFanout,
	})
	if err != nil {
		return err
	}
	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return err
	}
	interpreter, err := assist.NewInterpreter(assist.InterpreterOpts{
		Client:      llmClient,
		Threshold:   cfg.Assistant.ConfidenceThreshold,
		CallTimeout: time.Duration(cfg.Assistant.CallTimeoutSec) * time.Second,
	})
	if err != nil {
		return err
	}
	executor, err := assist.NewExecutor(assist.ExecutorOpts{API: api, Credentials: creds})
	if err != nil {
		return err
	}
	pipeline, err := assist.NewPipeline(assist.PipelineOpts{
		Store:        st,
		Builder:      builder,
		Interpreter:  interpreter,
		Executor:     executor,
		HistoryTurns: cfg.Assistant.HistoryTurns,
	})
	if err != nil {
		return err
	}

	adapter, err := buildAdapter(cfg)
	if err != nil {
		return err
	}
	router, err := bot.NewRouter(bot.RouterOpts{
		Store:    st,
		Handler:  pipeline,
		Contexts: builder,
		Auth:     auth,
		Adapter:  adapter,
		Out:      out,
	})
	if err != nil {
		return err
	}
	daemon, err := bot.NewDaemon(bot.DaemonOpts{
		Adapter: adapter,
		Router:  router,
		Out:     out,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Dashboard.Enabled {
		go func() {
			if err := dashboard.Start(ctx, dashboard.StartOpts{
				DB:   gdb,
				Port: cfg.Dashboard.Port,
				Out:  out,
			}); err != nil {
				log.Printf("valet: dashboard: %v", err)
			}
		}()
	}

	if cfg.Telemetry.Enabled {
		recorder, err := telemetry.NewRecorder(telemetry.RecorderOpts{
			Store:       st,
			API:         api,
			Credentials: creds,
			Spec:        cfg.Telemetry.Cron,
			Out:         out,
		})
		if err != nil {
			return err
		}
		if err := recorder.Start(); err != nil {
			return err
		}
		defer recorder.Stop()
	}

	return daemon.Run(ctx)
}

// buildAdapter constructs the chat adapter selected by the config.
func buildAdapter(cfg *config.Config) (bot.Adapter, error) {
	switch cfg.Platform {
	case "telegram":
		return telegram.New(telegram.AdapterOpts{
			BotToken:     cfg.Telegram.BotToken,
			PollInterval: time.Duration(cfg.Telegram.PollIntervalSec) * time.Second,
		})
	case "discord":
		return discord.New(discord.AdapterOpts{
			BotToken:  cfg.Discord.BotToken,
			ChannelID: cfg.Discord.ChannelID,
		})
	case "slack":
		return slack.New(slack.AdapterOpts{
			BotToken:  cfg.Slack.BotToken,
			AppToken:  cfg.Slack.AppToken,
			ChannelID: cfg.Slack.ChannelID,
		})
	default:
		return nil, fmt.Errorf("unsupported platform %q", cfg.Platform)
	}
}
