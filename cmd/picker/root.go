package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wms-platform/pick-floor/internal/picker"
	"github.com/wms-platform/pick-floor/pkg/logging"
)

const configName = ".pickfloor"

// Config keys, also the flag names
const (
	keyServer        = "server"
	keyPicker        = "picker"
	keyDataDir       = "data-dir"
	keyMinScanLength = "min-scan-length"
	keyLogLevel      = "log-level"
)

var cfgFile string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "picker",
		Short: "Pick floor handheld client",
		Long: `picker claims work units, records picks from a keyboard-wedge
scanner and mirrors every change to the pick floor API.

Settings come from flags, PICKFLOOR_* environment variables or
~/.pickfloor.yaml, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.pickfloor.yaml)")
	flags.String(keyServer, "http://localhost:8080", "pick floor API base URL")
	flags.String(keyPicker, "", "picker ID this device acts for")
	flags.String(keyDataDir, defaultDataDir(), "directory of the local queue cache")
	flags.Int(keyMinScanLength, picker.DefaultMinScanLength, "shortest code treated as a scan")
	flags.String(keyLogLevel, "warn", "log level for diagnostics on stderr")

	root.AddCommand(
		newQueueCommand(),
		newNextCommand(),
		newPickCommand(),
		newReleaseCommand(),
		newExceptionsCommand(),
		newResolveCommand(),
		newTimelineCommand(),
		newSyncCommand(),
	)
	return root
}

func initConfig(cmd *cobra.Command) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PICKFLOOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return err
		}
	}
	return viper.BindPFlags(cmd.Flags())
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "pickfloor")
	}
	return ".pickfloor-data"
}

// app bundles what every command needs
type app struct {
	client *picker.Client
	logger *logging.Logger
	server string
}

func newApp() (*app, error) {
	pickerID := viper.GetString(keyPicker)
	if pickerID == "" {
		return nil, errors.New("picker ID is not set (use --picker or PICKFLOOR_PICKER)")
	}
	server := strings.TrimRight(viper.GetString(keyServer), "/")

	logConfig := logging.DefaultConfig("picker")
	logConfig.Level = logging.LogLevel(viper.GetString(keyLogLevel))
	logConfig.Output = os.Stderr

	return &app{
		client: picker.NewClient(server, pickerID),
		logger: logging.New(logConfig).WithFields(map[string]any{"pickerId": pickerID}),
		server: server,
	}, nil
}

// openStore opens the device cache. Callers close it.
func (a *app) openStore() (*picker.LocalStore, error) {
	dir := viper.GetString(keyDataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return picker.OpenLocalStore(dir, nil)
}

// pushURL is the API's websocket endpoint
func (a *app) pushURL() string {
	url := a.server
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/api/v1/ws"
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
