package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wenzapen/browse/browser"
	"github.com/wenzapen/browse/engine"
	"github.com/wenzapen/browse/log"
	"github.com/wenzapen/browse/proxy"
	"github.com/wenzapen/browse/script"
	"github.com/wenzapen/browse/spider"
	"go.uber.org/zap"
)

var RunCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "run a crawl script",
	Long:  "run a crawl script, writing extracted records to the configured output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := LoadSettings(cfgFile, cmd.Flags().Changed("config"))
		if err != nil {
			return fmt.Errorf("load config %s: %w", cfgFile, err)
		}
		if cmd.Flags().Changed("output") {
			settings.Output = output
		}
		if cmd.Flags().Changed("headless") {
			settings.Headless = headless
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return Run(ctx, settings, args[0], nil, cmd.ErrOrStderr())
	},
}

var (
	cfgFile  string
	output   string
	headless bool
)

func init() {
	RunCmd.Flags().StringVar(&cfgFile, "config", "config.toml", "set config file")
	RunCmd.Flags().StringVar(&output, "output", "", "write records to a file, or to sqlite://<path>")
	RunCmd.Flags().BoolVar(&headless, "headless", true, "run the browser without a window")
}

// Run executes the script at path. A nil provider launches a local browser.
func Run(ctx context.Context, settings Settings, path string, provider browser.Provider, stderr io.Writer) error {
	logger, closer, err := log.New(settings.LogLevel, settings.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()
	defer logger.Sync()

	sc, err := script.Load(path)
	if err != nil {
		return err
	}
	if err := sc.Check(); err != nil {
		return err
	}
	if sc.Headless == nil {
		sc.Headless = &settings.Headless
	}

	if provider == nil {
		provider = browser.RodProvider{Bin: settings.Bin}
	}
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithProvider(provider),
		engine.WithInterpreter(spider.NewInterpreter(spider.WithLogger(logger))),
		engine.WithOutput(settings.Output),
		engine.WithTimeout(settings.Timeout),
		engine.WithRateLimit(settings.Rate, settings.Burst),
		engine.WithDiagnostic(stderr),
	}
	if len(settings.Proxy) > 0 {
		p, err := proxy.RoundRobinSwitcher(settings.Proxy...)
		if err != nil {
			return err
		}
		opts = append(opts, engine.WithProxy(p))
	}
	logger.Info("proxy list", zap.Strings("proxy", settings.Proxy), zap.Duration("timeout", settings.Timeout))

	e := engine.NewEngine(opts...)
	runErr := script.Run(ctx, e, e.Root(), sc)
	closeErr := e.Close()

	stats := e.Stats()
	logger.Info("crawl finished",
		zap.String("script", path),
		zap.Int64("visits", stats.Visits),
		zap.Int64("matches", stats.Matches),
		zap.Int64("records", stats.Records))

	if runErr != nil {
		return runErr
	}
	return closeErr
}
