package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/contentmod/contentmod/automod"
	"github.com/contentmod/contentmod/automod/provider"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "contentmod",
		Usage:   "document store content moderation daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "collection-path",
			Usage:   "collection to moderate (eg, 'posts' or 'users/123/comments')",
			EnvVars: []string{"COLLECTION_PATH"},
		},
		&cli.StringFlag{
			Name:    "text-field",
			Usage:   "record field containing the text to moderate",
			EnvVars: []string{"TEXT_FIELD"},
		},
		&cli.StringFlag{
			Name:    "moderation-field",
			Usage:   "record field where moderation metadata is written",
			Value:   "moderation",
			EnvVars: []string{"MODERATION_FIELD"},
		},
		&cli.StringFlag{
			Name:    "ai-provider",
			Usage:   "moderation backend: openai, gemini, or local",
			Value:   automod.ProviderLocal,
			EnvVars: []string{"AI_PROVIDER"},
		},
		&cli.StringFlag{
			Name:    "openai-api-key",
			EnvVars: []string{"OPENAI_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "gemini-api-key",
			EnvVars: []string{"GEMINI_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "gemini-model",
			Value:   provider.DefaultGeminiModel,
			EnvVars: []string{"GEMINI_MODEL"},
		},
		&cli.StringFlag{
			Name:    "blocklist-words",
			Usage:   "comma-separated words for the local provider",
			EnvVars: []string{"BLOCKLIST_WORDS"},
		},
		&cli.StringFlag{
			Name:    "moderation-action",
			Usage:   "what to do with flagged records: flag, hide, or delete",
			Value:   string(automod.ActionFlag),
			EnvVars: []string{"MODERATION_ACTION"},
		},
		&cli.Float64Flag{
			Name:    "sensitivity",
			Usage:   "category score threshold, between 0.0 and 1.0",
			Value:   0.5,
			EnvVars: []string{"SENSITIVITY"},
		},
		&cli.BoolFlag{
			Name:    "enable-events",
			EnvVars: []string{"ENABLE_EVENTS"},
		},
		&cli.BoolFlag{
			Name:    "do-backfill",
			Usage:   "moderate records which existed before installation",
			EnvVars: []string{"DO_BACKFILL"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "document store database (sqlite:// or postgres://)",
			Value:   "sqlite://data/contentmod/documents.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   40,
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "emit OpenTelemetry spans for document store queries",
			EnvVars: []string{"DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis server for the backfill queue (optional)",
			EnvVars: []string{"REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"CONTENTMOD_LOG_LEVEL", "LOG_LEVEL"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		backfillCmd,
		moderateCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// Builds the immutable moderation configuration from flags and environment.
func configFromCLI(cctx *cli.Context) (*automod.Config, error) {
	config := automod.DefaultConfig()
	config.CollectionPath = cctx.String("collection-path")
	config.TextField = cctx.String("text-field")
	config.ModerationField = cctx.String("moderation-field")
	config.Provider = strings.ToLower(cctx.String("ai-provider"))
	config.OpenAIAPIKey = cctx.String("openai-api-key")
	config.GeminiAPIKey = cctx.String("gemini-api-key")
	config.GeminiModel = cctx.String("gemini-model")
	config.BlocklistWords = cctx.String("blocklist-words")
	config.Action = automod.ActionPolicy(strings.ToLower(cctx.String("moderation-action")))
	config.Sensitivity = cctx.Float64("sensitivity")
	config.EnableEvents = cctx.Bool("enable-events")
	config.DoBackfill = cctx.Bool("do-backfill")
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3999",
			EnvVars: []string{"CONTENTMOD_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"CONTENTMOD_METRICS_LISTEN"},
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "kafka brokers for moderation events",
			EnvVars: []string{"KAFKA_BROKERS"},
		},
		&cli.StringFlag{
			Name:    "kafka-topic",
			Value:   "contentmod-events",
			EnvVars: []string{"KAFKA_TOPIC"},
		},
		&cli.StringFlag{
			Name:    "events-webhook-url",
			Usage:   "URL to POST moderation events to",
			EnvVars: []string{"EVENTS_WEBHOOK_URL"},
		},
		&cli.Float64Flag{
			Name:    "backfill-rate-limit",
			Usage:   "max provider requests per second during backfill",
			Value:   5,
			EnvVars: []string{"BACKFILL_RATE_LIMIT"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := configLogger(cctx)
		if err := configOTEL("contentmod"); err != nil {
			return err
		}

		config, err := configFromCLI(cctx)
		if err != nil {
			return err
		}

		srv, err := NewServer(ctx, config, ServerConfig{
			Logger:            logger,
			DatabaseURL:       cctx.String("database-url"),
			MaxDBConnections:  cctx.Int("max-db-connections"),
			DBTracing:         cctx.Bool("db-tracing"),
			RedisURL:          cctx.String("redis-url"),
			KafkaBrokers:      cctx.StringSlice("kafka-brokers"),
			KafkaTopic:        cctx.String("kafka-topic"),
			WebhookURL:        cctx.String("events-webhook-url"),
			BackfillRateLimit: cctx.Float64("backfill-rate-limit"),
			Bind:              cctx.String("bind"),
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "err", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run moderation service: %w", err)
		}
		return nil
	},
}

var backfillCmd = &cli.Command{
	Name:  "backfill",
	Usage: "moderate existing records in the collection",
	Description: "With redis configured, enqueues a scan for a running service to pick up. Otherwise the scan " +
		"is run in-process until it completes.",
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := configLogger(cctx)

		config, err := configFromCLI(cctx)
		if err != nil {
			return err
		}

		srv, err := NewServer(ctx, config, ServerConfig{
			Logger:           logger,
			DatabaseURL:      cctx.String("database-url"),
			MaxDBConnections: cctx.Int("max-db-connections"),
			RedisURL:         cctx.String("redis-url"),
		})
		if err != nil {
			return err
		}

		if err := srv.backfill.Start(ctx); err != nil {
			return err
		}
		if srv.rdb != nil {
			fmt.Println("backfill enqueued")
			return nil
		}
		st, err := srv.RunBackfillToCompletion(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s (state=%s total=%d)\n", st.Message, st.State, st.Processed)
		return nil
	},
}

var moderateCmd = &cli.Command{
	Name:      "moderate",
	Usage:     "score a single text with the configured provider, without writing anything",
	ArgsUsage: "<text>",
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		configLogger(cctx)

		text := strings.Join(cctx.Args().Slice(), " ")
		if text == "" {
			return fmt.Errorf("need text to moderate as an argument")
		}

		config := automod.DefaultConfig()
		config.Provider = strings.ToLower(cctx.String("ai-provider"))
		config.OpenAIAPIKey = cctx.String("openai-api-key")
		config.GeminiAPIKey = cctx.String("gemini-api-key")
		config.GeminiModel = cctx.String("gemini-model")
		config.BlocklistWords = cctx.String("blocklist-words")
		config.Sensitivity = cctx.Float64("sensitivity")
		if err := config.ValidateProvider(); err != nil {
			return err
		}

		prov, err := provider.New(&config)
		if err != nil {
			return err
		}
		res, err := prov.Moderate(ctx, text)
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}
