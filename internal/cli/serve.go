package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/susu3304/chipledger/internal/api"
	"github.com/susu3304/chipledger/internal/bot"
	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/settlement"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, when DISCORD_TOKEN is set, the digest bot",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	defer log.Sync() //nolint:errcheck

	var policy ledger.StatusPolicy = ledger.TrustRequested{}
	if cfg.StrictApproval {
		policy = ledger.HostApproval{}
	}
	l := ledger.New(st, policy, log.Named("ledger"))
	engine := settlement.NewEngine(st, log.Named("settlement"))

	if cfg.DiscordToken != "" {
		discordBot, err := bot.New(cfg.DiscordToken, engine, st, cfg.DigestInterval, log.Named("bot"))
		if err != nil {
			return err
		}
		if err := discordBot.Start(); err != nil {
			return err
		}
		defer discordBot.Stop() //nolint:errcheck
	} else {
		log.Info("DISCORD_TOKEN not set, digest bot disabled")
	}

	if err := api.New(cfg, l, engine, log.Named("api")).Start(ctx); err != nil {
		log.Error("API server error", zap.Error(err))
		return err
	}
	log.Info("Shutting down...")
	return nil
}
