// Package cmd implements the luma CLI.
package cmd

import (
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lumastream/luma/config"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "luma",
	Short: "Live-streaming origin server",
	Long: `luma ingests live streams over RTMP and serves them back out over
RTMP, HTTP-FLV and HLS.

Configuration comes from conf.yaml (or --config), LUMA_* environment
variables and built-in defaults.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		glog.Errorf("%v", err)
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default conf.yaml)")
	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("conf")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
		v.AddConfigPath("/etc/luma")
	}

	v.SetEnvPrefix("LUMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			glog.Exitf("Cannot read config file: %v", err)
		}
	} else {
		glog.Infof("Using config file %v", v.ConfigFileUsed())
	}
}
