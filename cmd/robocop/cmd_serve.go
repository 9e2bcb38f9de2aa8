package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryubing/robocop-go/internal/analyzer"
	"github.com/ryubing/robocop-go/internal/bot"
	"github.com/ryubing/robocop-go/internal/config"
	"github.com/ryubing/robocop-go/internal/denylist"
	internalerrors "github.com/ryubing/robocop-go/internal/errors"
	"github.com/ryubing/robocop-go/internal/faq"
	"github.com/ryubing/robocop-go/internal/fetch"
	"github.com/ryubing/robocop-go/internal/logging"
	"github.com/ryubing/robocop-go/internal/notification"
	"github.com/ryubing/robocop-go/internal/reactionroles"
	"github.com/ryubing/robocop-go/internal/storage"
	"github.com/ryubing/robocop-go/pkg/logger"
)

const cleanupInterval = 24 * time.Hour

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and answer log uploads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if err := cfg.ValidateBot(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			// Initialize logger with credential sanitization
			baseLog := logger.New(logger.Config{
				Level:      cfg.LogLevel,
				LogDir:     cfg.LogDir,
				Filename:   "robocop.log",
				MaxSizeMB:  10,
				MaxBackups: 5,
				Console:    true,
				Fields:     map[string]string{"version": version},
			})
			log := logging.NewSecure(baseLog)
			defer func() {
				if err := log.Close(); err != nil {
					_, _ = fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
				}
			}()

			log.Info().
				Str("token", internalerrors.MaskCredential(cfg.DiscordBotToken)).
				Str("guild_id", cfg.DiscordGuildID).
				Strs("channels", cfg.LogAllowedChannels).
				Msg("Starting robocop")

			if err := runServe(cmd.Context(), cfg, log); err != nil {
				log.Error().Err(err).Msg("Bot stopped with an error")
				return err
			}
			log.Info().Msg("Bot stopped")
			return nil
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, log *logging.SecureLogger) error {
	log.Info().Msg("Initializing components...")

	// 1. Log downloads and the upload gate
	fetcher, err := fetch.New(fetch.Config{
		HeadBytes:      int(cfg.FetchHeadBytes),
		TailBytes:      int(cfg.FetchTailBytes),
		MaxBytes:       cfg.FetchMaxBytes,
		TimeoutSeconds: cfg.FetchTimeoutSeconds,
		ProxyURL:       cfg.GetProxyURL(true),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize fetcher: %w", err)
	}
	gate, err := analyzer.NewUploadGate(cfg.LogAllowedChannels, analyzer.DefaultLedgerCapacity)
	if err != nil {
		return err
	}

	// 2. Sinks: history database and staff archive (both optional)
	var sinks []analyzer.Sink
	if cfg.EnableDatabase {
		store, err := storage.New(cfg.DatabasePath, log)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close database")
			}
		}()
		log.Info().Str("path", cfg.DatabasePath).Msg("Database initialized")

		go cleanupLoop(ctx, store, cfg.HistoryRetentionDays, log)
		sinks = append(sinks, storage.NewHistorySink(store))
	}

	if cfg.HasArchiveChannel() {
		telegramClient, err := notification.NewTelegramClient(cfg.TelegramBotToken, cfg.TelegramArchiveChannel)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		log.Info().
			Str("username", telegramClient.Username()).
			Msg("Telegram archive initialized")
		sinks = append(sinks, telegramClient)
	}

	pipeline := analyzer.NewPipeline(gate, fetcher,
		analyzer.WithSinks(sinks...),
		analyzer.WithLogger(log),
		analyzer.WithMaxConcurrent(cfg.MaxConcurrentAnalyses),
	)

	// 3. Commands and state
	catalog, err := faq.Load(cfg.SourceURL)
	if err != nil {
		return err
	}
	deny, err := denylist.Open(cfg.StateDir)
	if err != nil {
		return err
	}
	log.Info().Str("path", deny.Path()).Msg("Denylist opened")

	// 4. Discord
	session, err := bot.NewSession(cfg.DiscordBotToken, cfg.DiscordGuildID, log)
	if err != nil {
		return err
	}

	var roles *reactionroles.Manager
	if cfg.HasReactionRoles() {
		roles = reactionroles.NewManager(session, cfg.DiscordGuildID, cfg.Guild.ReactionRoles, cfg.StateDir, log)
		log.Info().
			Str("config", cfg.GuildConfigPath).
			Int("roles", len(cfg.Guild.ReactionRoles.Roles)).
			Msg("Reaction roles enabled")
	}

	b := bot.New(cfg, bot.Deps{
		Chat:     session,
		Pipeline: pipeline,
		Catalog:  catalog,
		Denylist: deny,
		Roles:    roles,
		Log:      log,
	})
	return session.Run(ctx, b)
}

// cleanupLoop prunes the history at startup and then once a day.
func cleanupLoop(ctx context.Context, store *storage.Storage, days int, log *logging.SecureLogger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		deleted, err := store.CleanupOldAnalyses(ctx, days)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to cleanup old analyses")
		} else if deleted > 0 {
			log.Info().Int64("deleted", deleted).Msg("Old analyses cleaned up")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
