package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/server"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/subgraphs"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/subgraphs/store"
)

// defaultSubgraphAddrs matches config.DefaultSubgraphs.
var defaultSubgraphAddrs = map[string]string{
	subgraphs.Auth:       ":4001",
	subgraphs.Employee:   ":4004",
	subgraphs.Attendance: ":4005",
}

var (
	subgraphAddr string
	subgraphDB   string
)

var subgraphCmd = &cobra.Command{
	Use:       "subgraph <auth|employee|attendance>",
	Short:     "Run one of the reference EMS subgraphs",
	Long:      `Serves a reference subgraph backed by SQLite (a file path) or Postgres (a postgres:// URL). Migrations run on startup.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: subgraphs.Names(),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !subgraphs.Known(name) {
			return fmt.Errorf("unknown subgraph %q (want one of %v)", name, subgraphs.Names())
		}

		addr := subgraphAddr
		if addr == "" {
			addr = defaultSubgraphAddrs[name]
		}
		dsn := subgraphDB
		if dsn == "" {
			dsn = fmt.Sprintf("ems-%s.db", name)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := store.OpenMigrated(ctx, dsn)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close(db)
		logger.Info("database ready", zap.String("subgraph", name), zap.String("dialect", string(store.DetectDialect(dsn))))

		handler, err := subgraphs.Build(name, db, cfg.Auth, logger)
		if err != nil {
			return err
		}

		srv := server.NewHTTPServer(addr, handler)
		return server.ListenAndServe(ctx, srv, logger.With(zap.String("subgraph", name)))
	},
}

func init() {
	subgraphCmd.Flags().StringVar(&subgraphAddr, "addr", "", "Bind address (defaults per subgraph)")
	subgraphCmd.Flags().StringVar(&subgraphDB, "db", "", "Database DSN (default ems-<name>.db)")
}
