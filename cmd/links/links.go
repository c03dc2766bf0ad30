// Log into a website and print the same-site links found on one of
// its pages. Useful to check what mirror would follow.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"git.autistici.org/ale/mirror"
	"git.autistici.org/ale/mirror/analysis"
	"git.autistici.org/ale/mirror/config"
	"git.autistici.org/ale/mirror/logging"
)

func newLinksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "links <url> [secret]",
		Short:         "Print the links of a page that are on the same site",
		Args:          cobra.RangeArgs(1, 2),
		RunE:          runLinksCmd,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := cmd.Flags()
	f.String("config", "", "configuration file path")
	f.String("auth", "", "authentication: form, basic or none (default form)")
	f.String("user", "", "user name for basic authentication")
	f.String("field", "", "name of the form field carrying the access code")
	f.Bool("insecure", false, "do not verify TLS certificates")
	f.BoolP("verbose", "v", false, "log debug messages")
	return cmd
}

func runLinksCmd(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.Find(path))
	if err != nil {
		return err
	}
	cfg.URL = args[0]
	if len(args) > 1 {
		cfg.Secret = args[1]
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
	if f.Changed("insecure") {
		cfg.InsecureSkipVerify, _ = f.GetBool("insecure")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	verbose, _ := f.GetBool("verbose")
	logger := logging.NewLogger(cmd.ErrOrStderr(), verbose, cfg.Secrets()...)
	return printLinks(cmd.Context(), cfg, cmd.OutOrStdout(), logger)
}

// printLinks writes the links found at cfg.URL to w, one per line.
func printLinks(ctx context.Context, cfg *config.Config, w io.Writer, logger *slog.Logger) error {
	seed, err := mirror.ParseSeed(cfg.URL)
	if err != nil {
		return err
	}
	session := cfg.NewSession(seed)

	var fetcher mirror.Fetcher = mirror.NewHTTPFetcher(session, cfg.MaxBodyBytes)
	landing, err := session.Establish(ctx)
	if err != nil {
		logger.Warn("login failed", "url", seed.String(), "error", err)
	}
	if landing != nil {
		fetcher = mirror.WithPreset(fetcher, seed, landing)
	}

	res, err := fetcher.Fetch(ctx, seed)
	if err != nil {
		return err
	}
	base := res.FinalURL
	if base == nil {
		base = res.URL
	}
	links, err := analysis.GetLinks(res.Body, res.ContentType, base, seed.Host)
	if err != nil {
		return err
	}
	for _, link := range links {
		fmt.Fprintln(w, link.String()) // nolint
	}
	return nil
}

func main() {
	if err := newLinksCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "links: %v\n", err) // nolint
		os.Exit(1)
	}
}
