package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mirkobrombin/go-coord/v1/client"
	"github.com/mirkobrombin/go-coord/v1/config"
)

var (
	v  = viper.New()
	cl *client.Client
	tp *sdktrace.TracerProvider

	rootCmd = &cobra.Command{
		Use:                "coordctl",
		Short:              "Inspect and drive Redis coordination primitives",
		SilenceUsage:       true,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}
)

func init() {
	d := config.Default()
	f := rootCmd.PersistentFlags()
	f.String("config", "", "optional config file (yaml, toml or json)")
	f.String("endpoints", strings.Join(d.Endpoints, ","), "comma-separated Redis addresses")
	f.String("username", d.Username, "Redis ACL user")
	f.String("password", d.Password, "Redis password")
	f.Int("db", d.DB, "Redis database")
	f.Duration("dial-timeout", d.DialTimeout, "connect timeout")
	f.Duration("sync-timeout", d.SyncTimeout, "per-command timeout")
	f.Int("max-retries", d.MaxRetries, "client retries per command")
	f.String("key-separator", d.KeySeparator, "separator between key segments")
	f.String("serializer", d.Serializer, "structured serializer (json, gob)")
	f.String("compression", d.Compression, "compression (none, gzip, zstd, snappy)")
	f.Duration("max-expiry", d.MaxExpiry, "ceiling for every TTL")
	f.Duration("lock-retry-delay", d.LockRetryDelay, "delay between lock attempts")
	f.Duration("lock-expiry", d.DefaultLockExpiry, "default lock TTL")
	f.Duration("max-random-expiry", d.MaxRandomExpiry, "jitter added to value TTLs")
	f.String("log-level", "warn", "log level (debug, info, warn, error)")
	f.Bool("trace", false, "print OpenTelemetry spans to stdout")

	rootCmd.AddCommand(counterCmd, lockCmd, ratelimitCmd, firewallCmd, valueCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	config.SetDefaults(v)
	v.SetEnvPrefix("coord")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if v.GetBool("trace") {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cmd.OutOrStdout()), stdouttrace.WithPrettyPrint())
		if err != nil {
			return err
		}
		tp = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
		otel.SetTracerProvider(tp)
	}

	cl, err = client.New(cmd.Context(), cfg, client.WithLogger(logger))
	return err
}

func teardown(cmd *cobra.Command, _ []string) error {
	if tp != nil {
		_ = tp.Shutdown(context.WithoutCancel(cmd.Context()))
		tp = nil
	}
	if cl != nil {
		err := cl.Close()
		cl = nil
		return err
	}
	return nil
}

func out(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
}
