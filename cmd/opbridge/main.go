package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/onecitymedic/opbridge/internal/config"
	"github.com/onecitymedic/opbridge/pkg/clients/discordclient"
	"github.com/onecitymedic/opbridge/pkg/core/identity"
	"github.com/onecitymedic/opbridge/pkg/core/localtime"
	"github.com/onecitymedic/opbridge/pkg/core/scheduler"
	"github.com/onecitymedic/opbridge/pkg/core/services"
	"github.com/onecitymedic/opbridge/pkg/db"
	"github.com/onecitymedic/opbridge/pkg/utils/logging"
)

// App holds the application dependencies
type App struct {
	cfg       *config.Config
	store     *db.Store
	discord   *discordclient.Client
	directory *identity.Directory
	publisher *services.Publisher
	runner    *services.Runner
	badges    []services.RoleBadge
	logger    *zap.Logger
}

var (
	configPath string
	debug      bool
	app        *App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "opbridge",
		Short: "Medical OP bridge - mirrors shift state into Discord",
		Long:  `A bridge service that mirrors the medical OP shift state into Discord channels: the live queue view, case reports, shift summaries and closed-case history.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil && app.logger != nil {
				app.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: opbridge_config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging on the console")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(checkConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp sets up logger and config; connections are opened by the commands
// that need them
func initApp() error {
	var err error
	app = &App{}

	app.logger, err = logging.InitLogger("opbridge", debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger.Info("Loading configuration")
	if configPath != "" {
		app.cfg, err = config.LoadFromPath(configPath)
	} else {
		app.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.logger.Debug("Configuration loaded successfully")

	for _, rb := range app.cfg.RoleBadges {
		app.badges = append(app.badges, services.RoleBadge{Badge: rb.Badge, RoleID: rb.RoleID})
	}

	return nil
}

// connect opens the store and Discord session and wires the shared services
func connect(ctx context.Context) error {
	var err error

	app.logger.Info("Connecting to redis", zap.String("url", app.cfg.RedisURL))
	app.store, err = db.NewStore(app.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	app.logger.Info("Opening Discord session")
	app.discord, err = discordclient.NewClient(app.cfg.DiscordToken, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create discord client: %w", err)
	}

	app.directory = identity.NewDirectory(app.store, time.Duration(app.cfg.IdentityCacheTTL), app.logger)
	app.publisher = services.NewPublisher(app.discord, app.store, app.cfg.OpChannelID, app.cfg.StoryChannelID, app.logger)
	app.runner = services.NewRunner(64, app.logger)

	return app.store.Ping(ctx)
}

func checkConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := connect(ctx); err != nil {
				return err
			}
			defer app.store.Close()

			app.logger.Info("Redis reachable")
			app.logger.Info("Configuration OK",
				zap.String("guild", app.cfg.GuildID),
				zap.String("opChannel", app.cfg.OpChannelID),
				zap.String("storyChannel", app.cfg.StoryChannelID),
			)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bridge service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := connect(ctx); err != nil {
				return err
			}
			defer app.store.Close()

			registerGatewayHandlers()
			if err := app.discord.Open(); err != nil {
				return fmt.Errorf("failed to open discord session: %w", err)
			}
			defer app.discord.Close()

			events, err := app.store.Subscribe(ctx)
			if err != nil {
				return fmt.Errorf("failed to subscribe to store events: %w", err)
			}
			defer events.Close()

			mid, err := scheduler.New(app.logger)
			if err != nil {
				return fmt.Errorf("failed to build midnight schedule: %w", err)
			}

			app.store.AppendLog(ctx, "INFO", "Bridge service started")
			app.logger.Info("Bridge service running",
				zap.String("guild", app.cfg.GuildID),
				zap.Time("nextMidnight", mid.Next(time.Now())),
			)

			go dispatchEvents(ctx, events)
			go mid.Run(ctx, enqueueMidnightJobs)

			// Bring the channels in line with whatever state we woke up to.
			enqueueReconcile()
			enqueue("post shift summary", func(ctx context.Context) error {
				return services.PostShiftSummary(ctx, app.store, app.directory, app.discord, app.cfg.OpChannelID, app.logger, time.Now())
			})
			enqueue("post closed case", func(ctx context.Context) error {
				return services.PostClosedCaseHistory(ctx, app.store, app.directory, app.discord, app.cfg.StoryChannelID, app.logger)
			})
			enqueue("post applicant verification", func(ctx context.Context) error {
				return services.PostApplicantVerification(ctx, app.store, app.discord, app.discord, app.cfg.ApproveChannelID, app.logger)
			})

			app.runner.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			app.store.AppendLog(shutdownCtx, "INFO", "Bridge service stopped")
			app.logger.Info("Bridge service stopped")
			return nil
		},
	}
}

// dispatchEvents turns store notifications into runner tasks. Every handler
// rereads state inside the task, so coalesced notifications are safe.
func dispatchEvents(ctx context.Context, events *db.Events) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-events.Snapshot:
			enqueueReconcile()
		case <-events.Summaries:
			enqueue("post shift summary", func(ctx context.Context) error {
				return services.PostShiftSummary(ctx, app.store, app.directory, app.discord, app.cfg.OpChannelID, app.logger, time.Now())
			})
		case <-events.ClosedCases:
			enqueue("post closed case", func(ctx context.Context) error {
				return services.PostClosedCaseHistory(ctx, app.store, app.directory, app.discord, app.cfg.StoryChannelID, app.logger)
			})
		case <-events.Applicants:
			enqueue("post applicant verification", func(ctx context.Context) error {
				return services.PostApplicantVerification(ctx, app.store, app.discord, app.discord, app.cfg.ApproveChannelID, app.logger)
			})
		}
	}
}

// enqueue schedules a task behind the bot-status gate so operators can
// switch the bridge off from the web app without a redeploy.
func enqueue(name string, fn func(ctx context.Context) error) {
	app.runner.Enqueue(name, services.Gated(app.store, app.logger, fn))
}

func enqueueReconcile() {
	enqueue("reconcile queue view", func(ctx context.Context) error {
		return services.ReconcileQueueView(ctx, app.store, app.directory, app.publisher, app.logger, time.Now())
	})
	enqueue("reconcile case view", func(ctx context.Context) error {
		return services.ReconcileCaseView(ctx, app.store, app.directory, app.publisher, app.logger, time.Now())
	})
}

// enqueueMidnightJobs runs the day rollover: expired leave reverts, avatars
// resync and both views rebuild under the new Bangkok date.
func enqueueMidnightJobs() {
	enqueue("revert expired leave", func(ctx context.Context) error {
		return services.RevertExpiredLeave(ctx, app.store, app.logger, time.Now().In(localtime.Zone))
	})
	enqueue("sync avatars", func(ctx context.Context) error {
		return services.SyncAvatars(ctx, app.store, app.discord, app.cfg.GuildID, app.logger)
	})
	enqueueReconcile()
}

// registerGatewayHandlers wires Discord gateway events into the services.
// Handlers only enqueue work; the runner goroutine does the actual writes.
func registerGatewayHandlers() {
	app.discord.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if s.State.User != nil && m.Author != nil && m.Author.ID == s.State.User.ID {
			return
		}
		switch m.ChannelID {
		case app.cfg.LeaveChannelID:
			channelID, messageID, content := m.ChannelID, m.ID, m.Content
			enqueue("acknowledge leave message", func(ctx context.Context) error {
				services.HandleLeaveMessage(app.discord, channelID, messageID, content, app.logger)
				return nil
			})
		case app.cfg.OpChannelID:
			content := m.Content
			authorID, authorName := m.Author.ID, m.Author.Username
			var roles []string
			if m.Member != nil {
				roles = m.Member.Roles
			}
			enqueue("capture op message", func(ctx context.Context) error {
				return services.HandleOpChannelMessage(ctx, app.store, app.badges, authorID, authorName, roles, content, app.logger)
			})
		}
	})

	app.discord.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		if r.ChannelID != app.cfg.LeaveChannelID && r.ChannelID != app.cfg.ApproveChannelID {
			return
		}
		if s.State.User != nil && r.UserID == s.State.User.ID {
			return
		}
		msg, err := s.ChannelMessage(r.ChannelID, r.MessageID)
		if err != nil {
			app.logger.Warn("failed to fetch reacted message", zap.Error(err))
			return
		}
		channelID, messageID := r.ChannelID, r.MessageID
		content := msg.Content
		authorID := ""
		if msg.Author != nil {
			authorID = msg.Author.ID
		}
		reactorID, emoji := r.UserID, r.Emoji.Name
		if channelID == app.cfg.ApproveChannelID {
			enqueue("handle approval reaction", func(ctx context.Context) error {
				return services.HandleApprovalReaction(ctx, app.store, app.discord, app.discord, app.logger,
					channelID, messageID, content, reactorID, emoji)
			})
			return
		}
		enqueue("handle leave reaction", func(ctx context.Context) error {
			return services.HandleLeaveReaction(ctx, app.store, app.discord, app.logger,
				channelID, messageID, content, reactorID, authorID, emoji)
		})
	})

	app.discord.AddHandler(func(s *discordgo.Session, u *discordgo.GuildMemberUpdate) {
		if u.GuildID != app.cfg.GuildID || u.User == nil {
			return
		}
		discordID := u.User.ID
		avatarURL := u.User.AvatarURL("512")
		enqueue("update member avatar", func(ctx context.Context) error {
			return services.UpdateMemberAvatar(ctx, app.store, discordID, avatarURL, app.logger)
		})
	})
}
