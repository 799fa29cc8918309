package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"pageshell/framework"
	"pageshell/framework/engine"
	"pageshell/framework/pattern"
	"pageshell/internal/config"
	"pageshell/internal/location"
	"pageshell/internal/modules"
	"pageshell/internal/routes"
	"pageshell/internal/site"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const documentTitle = "pageshell"

func main() {
	if err := newRootCommand(config.Load()).Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "pageshell: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(cfg config.Config) *cobra.Command {
	var logger *zap.Logger

	root := &cobra.Command{
		Use:           "pageshell",
		Short:         "Render a page shell for the route in a URL fragment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			built, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			logger = built
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.RoutesFile, "routes", cfg.RoutesFile, "YAML route manifest (default: built-in table)")
	flags.StringVar(&cfg.ContentDir, "content", cfg.ContentDir, "directory holding page markdown")
	flags.StringVar(&cfg.RootURL, "root-url", cfg.RootURL, "site root used to recognise same-site links")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	render := &cobra.Command{
		Use:   "render [url]",
		Short: "Load the base layout, dispatch the URL fragment and write the document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cfg.Location = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRender(ctx, cfg, logger, cmd.OutOrStdout())
		},
	}
	render.Flags().StringVarP(&cfg.OutputPath, "out", "o", cfg.OutputPath, "write the document here instead of stdout")
	render.Flags().DurationVar(&cfg.LoadTimeout, "timeout", cfg.LoadTimeout, "how long to wait for the page load")

	routesCmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the ordered route table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manifest, err := loadManifest(cfg.RoutesFile)
			if err != nil {
				return err
			}
			return printRoutes(cmd.OutOrStdout(), manifest)
		},
	}

	modulesCmd := &cobra.Command{
		Use:   "modules",
		Short: "Print the registered module specifiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := modules.NewRegistry()
			doc := site.NewDocument(documentTitle, site.DefaultNav())
			if err := site.Register(registry, doc, os.DirFS(cfg.ContentDir), site.Options{RootURL: cfg.RootURL}); err != nil {
				return err
			}
			for _, specifier := range registry.Specifiers() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), specifier); err != nil {
					return err
				}
			}
			return nil
		},
	}

	root.AddCommand(render, routesCmd, modulesCmd)
	return root
}

func runRender(ctx context.Context, cfg config.Config, logger *zap.Logger, stdout io.Writer) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	manifest, err := loadManifest(cfg.RoutesFile)
	if err != nil {
		return err
	}

	doc := site.NewDocument(documentTitle, site.DefaultNav())
	registry := modules.NewRegistry()
	if err := site.Register(registry, doc, os.DirFS(cfg.ContentDir), site.Options{RootURL: cfg.RootURL}); err != nil {
		return err
	}

	routeEngine, err := engine.New(engine.Config{
		Routes: manifest.Bind(registry),
		Logger: logger,
		HandleUnhandledLoad: func(loadErr *framework.LoadError) {
			logger.Error("page load failed",
				zap.String("dispatch_id", loadErr.DispatchID),
				zap.String("fragment", loadErr.Fragment),
				zap.String("pattern", loadErr.Pattern),
				zap.Error(loadErr.Err),
			)
		},
	})
	if err != nil {
		return fmt.Errorf("build route engine: %w", err)
	}

	dispatch, err := routeEngine.Start(ctx, manifest.LayoutLoader(registry), location.Parse(cfg.Location))
	if err != nil {
		return err
	}
	logger.Info("dispatched",
		zap.String("dispatch_id", dispatch.ID),
		zap.String("fragment", dispatch.Fragment),
		zap.Bool("matched", dispatch.Matched),
		zap.String("pattern", dispatch.Pattern),
	)

	if err := waitForPage(ctx, dispatch, cfg.LoadTimeout); err != nil {
		return err
	}
	logger.Info("page ready", zap.Strings("evaluated", evaluatedModules(registry)))

	if !doc.HasLayout() {
		return fmt.Errorf("layout module %q: %w", manifest.Layout, site.ErrNoLayout)
	}
	return writeDocument(ctx, doc, cfg.OutputPath, stdout)
}

func waitForPage(ctx context.Context, dispatch *engine.Dispatch, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := dispatch.Wait(waitCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("wait for page load %q: %w", dispatch.Pattern, err)
		}
		return err
	}
	return nil
}

func evaluatedModules(registry *modules.Registry) []string {
	evaluated := make([]string, 0)
	for _, specifier := range registry.Specifiers() {
		if registry.Evaluated(specifier) {
			evaluated = append(evaluated, specifier)
		}
	}
	return evaluated
}

func writeDocument(ctx context.Context, doc *site.Document, outputPath string, stdout io.Writer) error {
	if outputPath == "" {
		return doc.Render(ctx, stdout)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output %q: %w", outputPath, err)
	}
	if err := doc.Render(ctx, file); err != nil {
		_ = file.Close()
		return fmt.Errorf("render document: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close output %q: %w", outputPath, err)
	}
	return nil
}

func loadManifest(path string) (routes.Manifest, error) {
	if path == "" {
		return routes.Default(), nil
	}
	return routes.Load(path)
}

func printRoutes(w io.Writer, manifest routes.Manifest) error {
	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(table, "layout\t%s\n", manifest.Layout)
	for idx, entry := range manifest.Routes {
		matcher, err := pattern.Compile(entry.Pattern)
		if err != nil {
			return fmt.Errorf("route %d: %w", idx+1, err)
		}
		_, _ = fmt.Fprintf(table, "%d\t%s\t%s\t%s\n", idx+1, entry.Pattern, entry.Module, describeParams(matcher.Keys()))
	}
	return table.Flush()
}

func describeParams(keys []string) string {
	if len(keys) == 0 {
		return "-"
	}
	names := make([]string, len(keys))
	for idx, key := range keys {
		if key == "" {
			key = "$" + strconv.Itoa(idx+1)
		}
		names[idx] = key
	}
	return strings.Join(names, ",")
}

func newLogger(level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = atomicLevel
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
