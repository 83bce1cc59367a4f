package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/poemscout/internal/app"
)

var validFormats = []string{"text", "json"}

// poetNameNote is shared by the commands that take --poet.
const poetNameNote = "Poet names are stored and looked up with surrounding whitespace trimmed,\n" +
	"so \" Ghalib \" and \"Ghalib\" are the same poet."

const poetFlagUsage = "Poet name (surrounding whitespace is trimmed)"

// rootOptions holds the persistent flags shared by all commands.
type rootOptions struct {
	configPath string
	envFiles   []string
	dbPath     string
	cacheDir   string
	ocrEngine  string
	ocrLang    string
	format     string
	verbose    bool
	noRobots   bool
	noCache    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "poemscout",
		Short:         "Find and keep Urdu poems from poetry pages",
		Long:          "poemscout scrapes a page for Urdu poetry (text and images via OCR), picks one poem not yet stored for the poet and saves it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.format, validFormats)
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to YAML or JSON config file")
	pf.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "Dotenv files to load before reading env (missing files are skipped)")
	pf.StringVar(&opts.dbPath, "db", "", "SQLite database path (default poems.db)")
	pf.StringVar(&opts.cacheDir, "cache.dir", "", "Cache directory; empty string disables caching (default .poemscout-cache)")
	pf.StringVar(&opts.ocrEngine, "ocr.engine", "", "OCR engine: tesseract, vision or none")
	pf.StringVar(&opts.ocrLang, "ocr.lang", "", "OCR language as a BCP 47 tag (default ur)")
	pf.BoolVar(&opts.noRobots, "no-robots", false, "Do not consult robots.txt")
	pf.BoolVar(&opts.noCache, "no-cache", false, "Download pages and images again instead of revalidating cached copies")
	pf.StringVar(&opts.format, "format", "text", "Output format (json|text)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(newScoutCommand(opts))
	cmd.AddCommand(newCountCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newVersionCommand(opts))
	return cmd
}

// loadConfig resolves configuration: defaults, then the config file, then
// env, then flags the user actually set.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (app.Config, error) {
	if err := app.LoadEnvFiles(opts.envFiles...); err != nil {
		return app.Config{}, fmt.Errorf("load env files: %w", err)
	}
	cfg := app.DefaultConfig()
	if p := strings.TrimSpace(opts.configPath); p != "" {
		fc, err := app.LoadConfigFile(p)
		if err != nil {
			return app.Config{}, fmt.Errorf("load config: %w", err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = opts.dbPath
	}
	if flags.Changed("cache.dir") {
		cfg.CacheDir = opts.cacheDir
	}
	if flags.Changed("ocr.engine") {
		cfg.OCREngine = opts.ocrEngine
	}
	if flags.Changed("ocr.lang") {
		cfg.OCRLanguage = opts.ocrLang
	}
	if opts.noRobots {
		cfg.RespectRobots = false
	}
	if opts.noCache {
		cfg.CacheBypass = true
	}
	if opts.verbose {
		cfg.Verbose = true
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return cfg, nil
}

// withApp builds the app for one command and closes it afterwards.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newScoutCommand(opts *rootOptions) *cobra.Command {
	var poet, pageURL string
	cmd := &cobra.Command{
		Use:   "scout",
		Short: "Pick a new poem from a page and store it",
		Long: "scout fetches the page, collects Urdu poetry from text blocks and images, and stores one poem\n" +
			"not yet kept for the poet. " + poetNameNote,
		Example: `  poemscout scout --poet "Mirza Ghalib" --url https://example.org/ghalib/ghazals
  poemscout scout --poet Faiz --url https://example.org/faiz --ocr.engine vision --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				res, err := a.Scout(ctx, poet, pageURL)
				if err != nil {
					return err
				}
				return renderScout(cmd.OutOrStdout(), opts.format, res)
			})
		},
	}
	cmd.Flags().StringVar(&poet, "poet", "", poetFlagUsage)
	cmd.Flags().StringVar(&pageURL, "url", "", "Page URL to scout")
	return cmd
}

func newCountCommand(opts *rootOptions) *cobra.Command {
	var poet string
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Print how many poems are stored for a poet",
		Long:  "count prints how many poems are stored for the poet. " + poetNameNote,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				n, err := a.Count(ctx, poet)
				if err != nil {
					return err
				}
				return renderCount(cmd.OutOrStdout(), opts.format, poet, n)
			})
		},
	}
	cmd.Flags().StringVar(&poet, "poet", "", poetFlagUsage)
	return cmd
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var poet string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the poems stored for a poet",
		Long:  "list prints the poems stored for the poet in the order they were saved. " + poetNameNote,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				recs, err := a.Poems(ctx, poet)
				if err != nil {
					return err
				}
				return renderList(cmd.OutOrStdout(), opts.format, poet, recs)
			})
		},
	}
	cmd.Flags().StringVar(&poet, "poet", "", poetFlagUsage)
	return cmd
}

func newVersionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return renderVersion(cmd.OutOrStdout(), opts.format)
		},
	}
}
