// dns20i answers ACME DNS-01 challenges by publishing TXT records through
// the 20i reseller REST API. It can run as a certbot manual hook, perform
// single challenge steps, or obtain certificates directly through lego.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"gitlab.bluewillows.net/root/dns20i/internal/acme"
	"gitlab.bluewillows.net/root/dns20i/internal/config"
	"gitlab.bluewillows.net/root/dns20i/internal/metrics"
	"gitlab.bluewillows.net/root/dns20i/internal/propagation"
	"gitlab.bluewillows.net/root/dns20i/pkg/provider"
	"gitlab.bluewillows.net/root/dns20i/providers/twentyi"
)

// Version and BuildDate are set via ldflags during build.
// Example: -ldflags="-X main.Version=v1.0.0 -X main.BuildDate=2026-01-03"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

var errUsage = errors.New("invalid usage")

const usageText = `usage: dns20i [-config FILE] COMMAND [ARGS]

commands:
  perform DOMAIN VALIDATION_NAME VALUE   publish a challenge TXT record
  cleanup DOMAIN VALIDATION_NAME VALUE   remove a challenge TXT record
  auth-hook                              certbot --manual-auth-hook
  cleanup-hook                           certbot --manual-cleanup-hook
  obtain -d DOMAIN [-d DOMAIN...]        obtain a certificate through ACME
  info                                   describe this authenticator
  version                                print version information
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	if err != nil {
		switch {
		case err == errUsage:
		case errors.Is(err, errUsage):
			fmt.Fprintln(os.Stderr, err)
		default:
			slog.Error("fatal error", slog.String("error", err.Error()))
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("dns20i", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usageText) }
	configPath := fs.String("config", "", "configuration file (.yaml, .yml or .toml); defaults to $DNS20I_CONFIG")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}
	command, cmdArgs := fs.Arg(0), fs.Args()[1:]

	// Commands that need neither configuration nor credentials.
	switch command {
	case "info":
		fmt.Fprintln(stdout, twentyi.Description)
		return nil
	case "version":
		fmt.Fprintf(stdout, "dns20i %s (built %s, %s)\n", Version, BuildDate, runtime.Version())
		return nil
	case "perform", "cleanup", "auth-hook", "cleanup-hook", "obtain":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usageText)
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := setupLogger(stderr, cfg.LogLevel, cfg.LogFormat).
		With(slog.String("run_id", uuid.NewString()))
	slog.SetDefault(logger)

	metrics.SetBuildInfo(Version, runtime.Version())

	logger.Debug("dns20i starting",
		slog.String("version", Version),
		slog.String("command", command),
		slog.String("go_version", runtime.Version()),
	)

	err = runCommand(ctx, cfg, logger, command, cmdArgs, stderr)

	if cfg.MetricsTextfile != "" {
		if werr := metrics.WriteTextfile(cfg.MetricsTextfile); werr != nil {
			logger.Warn("writing metrics textfile failed",
				slog.String("path", cfg.MetricsTextfile),
				slog.String("error", werr.Error()),
			)
		}
	}

	return err
}

func runCommand(ctx context.Context, cfg *config.Config, logger *slog.Logger, command string, args []string, stderr io.Writer) error {
	p, err := twentyi.New(cfg.TwentyIProviderConfig(), twentyi.WithProviderLogger(logger))
	if err != nil {
		return fmt.Errorf("creating 20i provider: %w", err)
	}

	switch command {
	case "perform":
		domain, name, value, err := challengeArgs(command, args)
		if err != nil {
			return err
		}
		return perform(ctx, cfg, logger, p, domain, name, value)

	case "cleanup":
		domain, name, value, err := challengeArgs(command, args)
		if err != nil {
			return err
		}
		return p.Cleanup(ctx, domain, name, value)

	case "auth-hook":
		domain, value, err := certbotEnv()
		if err != nil {
			return err
		}
		return perform(ctx, cfg, logger, p, domain, provider.ValidationName(domain), value)

	case "cleanup-hook":
		domain, value, err := certbotEnv()
		if err != nil {
			return err
		}
		return p.Cleanup(ctx, domain, provider.ValidationName(domain), value)

	default:
		return obtain(ctx, cfg, logger, p, args, stderr)
	}
}

// perform publishes the record, then waits for it to become visible:
// polling nameservers when propagation.wait is set, otherwise sleeping
// for propagation.delay.
func perform(ctx context.Context, cfg *config.Config, logger *slog.Logger, p *twentyi.Provider, domain, name, value string) error {
	if err := p.Perform(ctx, domain, name, value); err != nil {
		return err
	}

	if cfg.Propagation.Wait {
		checker, err := propagation.New(append(cfg.PropagationOptions(), propagation.WithLogger(logger))...)
		if err != nil {
			return fmt.Errorf("creating propagation checker: %w", err)
		}
		return checker.Wait(ctx, name, value)
	}

	if d := cfg.Propagation.Delay; d > 0 {
		logger.Info("waiting for propagation", slog.Duration("delay", d))
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	return nil
}

func obtain(ctx context.Context, cfg *config.Config, logger *slog.Logger, p *twentyi.Provider, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("obtain", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var domains domainList
	fs.Var(&domains, "d", "domain to include in the certificate (repeatable)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if len(domains) == 0 {
		fmt.Fprintln(stderr, "obtain: at least one -d DOMAIN is required")
		return errUsage
	}

	obtainer, err := acme.NewObtainer(cfg.ACMEObtainerConfig(), twentyi.NewDNSProvider(ctx, p), acme.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating ACME client: %w", err)
	}

	_, err = obtainer.Obtain(domains)
	return err
}

func challengeArgs(command string, args []string) (domain, name, value string, err error) {
	if len(args) != 3 {
		return "", "", "", fmt.Errorf("%w: %s takes DOMAIN VALIDATION_NAME VALUE", errUsage, command)
	}
	return args[0], args[1], args[2], nil
}

// certbotEnv reads the variables certbot sets for manual hooks.
func certbotEnv() (domain, validation string, err error) {
	domain = os.Getenv("CERTBOT_DOMAIN")
	validation = os.Getenv("CERTBOT_VALIDATION")
	if domain == "" || validation == "" {
		return "", "", errors.New("CERTBOT_DOMAIN and CERTBOT_VALIDATION must be set")
	}
	return domain, validation, nil
}

// domainList collects repeated -d flags. Comma separated values are split.
type domainList []string

func (d *domainList) String() string {
	return strings.Join(*d, ",")
}

func (d *domainList) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*d = append(*d, v)
		}
	}
	return nil
}

func setupLogger(w io.Writer, level, format string) *slog.Logger {
	logLevel := parseLogLevel(level)

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})
	}

	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
