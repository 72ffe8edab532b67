package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/config"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "emsgateway",
	Short: "Multi-tenant GraphQL gateway for the EMS services",
	Long: `emsgateway composes the auth, employee and attendance GraphQL services into
one graph and forwards every operation with the caller's verified identity.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger = logging.New(os.Stderr, cfg.Debug)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to a YAML/JSON/TOML config file")
	flags.String("server-addr", "", "Gateway bind address (env: EMS_SERVER_ADDR)")
	flags.String("subgraphs", "", "Comma separated name=url subgraph list (env: EMS_SUBGRAPHS)")
	flags.String("jwt-secret", "", "HMAC secret for bearer tokens (env: EMS_AUTH_JWT_SECRET)")
	flags.Bool("debug", false, "Enable debug logging (env: EMS_DEBUG)")

	_ = viper.BindPFlag("server_addr", flags.Lookup("server-addr"))
	_ = viper.BindPFlag("subgraphs", flags.Lookup("subgraphs"))
	_ = viper.BindPFlag("auth.jwt_secret", flags.Lookup("jwt-secret"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))

	rootCmd.AddCommand(serveCmd, composeCmd, tokenCmd, subgraphCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
