package main

import (
	"fmt"
	"os"
	"runtime"

	"mentions/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// Version will be set during the build process using ldflags
var Version = "(dev) v0.0.0"

var (
	configFile string
	logFile    string
	verbosity  int
	root       string

	v   *viper.Viper
	cfg config.Config
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	v = viper.New()
	cmd := &cobra.Command{
		Use:           "mentions",
		Short:         "Entity mentions for plain-text editors",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	flags.StringVar(&logFile, "logfile", "", "path to log file")
	flags.CountVarP(&verbosity, "verbose", "v", "log verbosity")
	flags.StringVar(&root, "root", "", "workspace root the document store belongs to")
	flags.String("catalog", "", "catalog database path")
	flags.String("store", "", "document database path")
	_ = v.BindPFlag("catalog_path", flags.Lookup("catalog"))
	_ = v.BindPFlag("store_path", flags.Lookup("store"))

	cmd.AddCommand(
		lspCmd(),
		renderCmd(),
		importCmd(),
		searchCmd(),
		historyCmd(),
		revertCmd(),
	)
	return cmd
}

func setup() error {
	runtime.GOMAXPROCS(4)

	// Logger used by glsp
	if logFile != "" {
		commonlog.Configure(verbosity+1, &logFile)
	} else {
		commonlog.Configure(verbosity, nil)
	}

	if err := config.Bind(v); err != nil {
		return err
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	var err error
	cfg, err = config.FromViper(v)
	return err
}
