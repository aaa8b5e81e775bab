package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	diafano "github.com/eldiafano/diafano"
	"github.com/eldiafano/diafano/internal/auth"
	"github.com/eldiafano/diafano/internal/config"
	"github.com/eldiafano/diafano/internal/output"
	"github.com/eldiafano/diafano/internal/ranking"
)

var (
	configPath   string
	cfg          *config.Config
	logger       *slog.Logger
	outputFormat string
	formatter    *output.Formatter
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "diafano",
		Short:         "El Diáfano: ranked Chilean news stories with media bias analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "output format: json, text, human")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(rankCmd())
	rootCmd.AddCommand(historiaCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(medioCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(initConfigCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format)

	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	logger = cfg.NewLogger()
	slog.SetDefault(logger)
	return nil
}

func openEngine(ctx context.Context) (*diafano.Engine, error) {
	engine, err := diafano.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables in the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("schema up to date", "driver", cfg.Database.Driver)
			return nil
		},
	}
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch every outlet feed and store new items as pending noticias",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			stats, err := engine.FetchFeeds(cmd.Context())
			if err != nil {
				return err
			}
			return formatter.OutputFetchStats(stats)
		},
	}
}

func rankCmd() *cobra.Command {
	var tab, fecha string
	var limit int
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Print the story feed ordered for a tab",
		Long: `Print the live feed (last two days) or an archived day, ordered for a tab:
relevancia, top, cobertura, recientes, score or categoria.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			page, err := engine.Stories(cmd.Context(), ranking.ParseTab(tab), fecha)
			if err != nil {
				return err
			}
			stories, _ := ranking.Paginate(page.Stories, limit)
			return formatter.OutputStories(stories)
		},
	}
	cmd.Flags().StringVarP(&tab, "tab", "t", string(ranking.Relevance), "ordering tab")
	cmd.Flags().StringVar(&fecha, "fecha", "", "archived day (YYYY-MM-DD); empty for the live feed")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum stories to print")
	return cmd
}

func historiaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "historia <id>",
		Short: "Show one story with its articles and coverage analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid story id %q", args[0])
			}
			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			detail, err := engine.Story(cmd.Context(), id)
			if err != nil {
				return err
			}
			return formatter.OutputStoryDetail(detail)
		},
	}
}

func searchCmd() *cobra.Command {
	var semantic bool
	var medioID int64
	var limit int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search stories by id, title, summary or tag",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			if query == "" && medioID == 0 {
				return fmt.Errorf("a query or --medio is required")
			}

			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx := cmd.Context()
			switch {
			case medioID != 0:
				return formatter.OutputSearch(engine.SearchByOutlet(ctx, medioID, limit))
			case semantic:
				return formatter.OutputSearch(engine.SemanticSearch(ctx, query, limit))
			}
			return formatter.OutputSearch(engine.Search(ctx, query, limit))
		},
	}
	cmd.Flags().BoolVar(&semantic, "semantic", false, "match by meaning using the embedding model")
	cmd.Flags().Int64Var(&medioID, "medio", 0, "list stories covered by this outlet id")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum results (default from config)")
	return cmd
}

func medioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "medio",
		Short: "Manage and classify outlets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered outlets",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			medios, err := engine.Medios(cmd.Context())
			if err != nil {
				return err
			}
			return formatter.OutputOutlets(medios)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "classify <nombre>",
		Short: "Show the leaning and credibility of an outlet name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()
			return formatter.OutputClassification(engine.ClassifyMedio(cmd.Context(), args[0]))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "import-opml <file>",
		Short: "Register the outlets and feed URLs listed in an OPML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			n, err := engine.ImportOPML(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to import OPML: %w", err)
			}
			logger.Info("imported outlets", "file", args[0], "medios", n)
			return nil
		},
	})
	return cmd
}

func tokenCmd() *cobra.Command {
	var role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token for the admin endpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := auth.NewJWTManager(cfg.API.AdminSecret, "", ttl)
			if err != nil {
				return fmt.Errorf("api.admin_secret: %w", err)
			}
			token, err := manager.Sign(args[0], role)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "token role: admin or editor")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file",
		// Runs before a config exists, so skip loadConfig.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = config.DefaultPath
			}
			if err := config.Default().Write(path); err != nil {
				return err
			}
			fmt.Printf("Created default config at %s\n", path)
			return nil
		},
	}
}
