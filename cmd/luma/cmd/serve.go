package cmd

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lumastream/luma"
	"github.com/lumastream/luma/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the origin server",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		applyLogLevel(cfg.LogLevel)

		srv, err := luma.New(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Start(ctx)
	},
}

// applyLogLevel maps the config's log_level onto glog's flags.
func applyLogLevel(level string) {
	flag.Set("logtostderr", "true")
	switch level {
	case "debug":
		flag.Set("v", "2")
	case "warn", "error":
		flag.Set("stderrthreshold", "WARNING")
	default:
		// info: glog defaults.
	}
}
