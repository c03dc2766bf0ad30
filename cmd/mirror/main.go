// Mirror a website, logging in first if needed, into a local
// directory tree.
//
// Usage:
//
//	mirror [seed-url] [secret] [output-dir]
//
// Arguments that are omitted are taken from the configuration file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"git.autistici.org/ale/mirror"
	"git.autistici.org/ale/mirror/analysis"
	"git.autistici.org/ale/mirror/config"
	"git.autistici.org/ale/mirror/logging"
	"git.autistici.org/ale/mirror/warc"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror [seed-url] [secret] [output-dir]",
		Short: "Download every page of a website reachable from a URL",
		Long: `Mirror logs into a website, if needed, and saves every resource on the
same host reachable from the seed URL below the output directory, at a
path mirroring its URL.

Login uses an access code posted as a form field by default. Use
--auth basic for HTTP Basic authentication and --auth none for public
sites. Settings not given on the command line are read from
./mirror.yaml or $XDG_CONFIG_HOME/mirror/config.yaml.`,
		Args:          cobra.MaximumNArgs(3),
		RunE:          runMirrorCmd,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.Flags()
	f.String("config", "", "configuration file path")
	f.String("auth", "", "authentication: form, basic or none (default form)")
	f.String("user", "", "user name for basic authentication")
	f.String("field", "", "name of the form field carrying the access code (default \"code\")")
	f.IntP("concurrency", "c", config.DefaultConcurrency, "concurrent fetches")
	f.Duration("timeout", config.DefaultTimeout, "timeout of each request")
	f.String("user-agent", "", "User-Agent header sent with each request")
	f.String("warc", "", "also write a WARC archive to this file or pattern (patterns must include a \"%s\" literal token)")
	f.StringArray("exclude", nil, "do not fetch URLs matching this regexp (may be repeated)")
	f.Bool("insecure", false, "do not verify TLS certificates")
	f.BoolP("verbose", "v", false, "log debug messages")

	return cmd
}

// buildConfig merges the configuration file with the command line.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.Find(path))
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		cfg.URL = args[0]
	}
	if len(args) > 1 {
		cfg.Secret = args[1]
	}
	if len(args) > 2 {
		cfg.OutputDir = args[2]
	}

	f := cmd.Flags()
	if f.Changed("auth") {
		cfg.Auth, _ = f.GetString("auth")
	}
	if f.Changed("user") {
		cfg.Username, _ = f.GetString("user")
	}
	if f.Changed("field") {
		cfg.FormField, _ = f.GetString("field")
	}
	if f.Changed("concurrency") {
		cfg.Concurrency, _ = f.GetInt("concurrency")
	}
	if f.Changed("timeout") {
		cfg.Timeout.Duration, _ = f.GetDuration("timeout")
	}
	if f.Changed("user-agent") {
		cfg.UserAgent, _ = f.GetString("user-agent")
	}
	if f.Changed("warc") {
		cfg.WARC, _ = f.GetString("warc")
	}
	if f.Changed("exclude") {
		excludes, _ := f.GetStringArray("exclude")
		cfg.Exclude = append(cfg.Exclude, excludes...)
	}
	if f.Changed("insecure") {
		cfg.InsecureSkipVerify, _ = f.GetBool("insecure")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func runMirrorCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := logging.NewLogger(cmd.ErrOrStderr(), verbose, cfg.Secrets()...)

	// Stop gently on SIGINT/SIGTERM: fetches in flight are
	// cancelled and the WARC output is closed properly.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, root, err := runMirror(ctx, cfg, logger)
	if root != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "visited %d unique URLs (%d fetched, %d failed), saved to %s\n", // nolint
			stats.Visited, stats.Fetched, stats.Failed, root)
	}
	return err
}

// runMirror performs the whole crawl described by cfg. It returns the
// absolute path of the output directory once that exists.
func runMirror(ctx context.Context, cfg *config.Config, logger *slog.Logger) (mirror.Stats, string, error) {
	seed, err := mirror.ParseSeed(cfg.URL)
	if err != nil {
		return mirror.Stats{}, "", err
	}
	store, err := mirror.NewStore(cfg.OutputDir)
	if err != nil {
		return mirror.Stats{}, "", err
	}
	root, err := filepath.Abs(store.Root())
	if err != nil {
		root = store.Root()
	}

	session := cfg.NewSession(seed)
	fetcher := mirror.NewHTTPFetcher(session, cfg.MaxBodyBytes)

	var h mirror.Handler = mirror.ExtractLinks(analysis.NewExtractor(seed.Host), logger)
	if cfg.WARC != "" {
		w, err := warcWriter(cfg.WARC, cfg.WARCSizeMB)
		if err != nil {
			return mirror.Stats{}, root, err
		}
		defer w.Close() // nolint

		saver, err := newWarcSaveHandler(w, cfg.UserAgent, h)
		if err != nil {
			return mirror.Stats{}, root, err
		}
		h = saver
	}

	opts := []mirror.Option{
		mirror.WithConcurrency(cfg.Concurrency),
		mirror.WithLogger(logger),
	}
	if len(cfg.Exclude) > 0 {
		scope, err := mirror.NewRegexpIgnoreScope(cfg.Exclude)
		if err != nil {
			return mirror.Stats{}, root, err
		}
		opts = append(opts, mirror.WithScope(scope))
	}

	crawler, err := mirror.NewCrawler(seed, session, fetcher, mirror.SaveTo(store, logger, h), opts...)
	if err != nil {
		return mirror.Stats{}, root, err
	}
	defer crawler.Close()

	logger.Info("starting crawl", "url", seed.String(), "output", root, "auth", cfg.Auth)
	stats, err := crawler.Run(ctx)
	if err != nil {
		logger.Error("crawl aborted", "error", err)
	} else {
		logger.Info("crawl complete", "visited", stats.Visited, "fetched", stats.Fetched, "failed", stats.Failed)
	}
	return stats, root, err
}

func warcWriter(path string, sizeMB int) (*warc.Writer, error) {
	if strings.Contains(path, "%s") {
		return warc.NewMultiWriter(path, uint64(sizeMB)*1024*1024)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return warc.NewWriter(f), nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "mirror: %v\n", err) // nolint
		}
		os.Exit(1)
	}
}
