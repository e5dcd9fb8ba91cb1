/*
main.go - Application entry point

PURPOSE:
  Command line for the ledger reconciliation engine. One binary serves the
  HTTP API, exports a party ledger, or runs a one-off consistency audit.

COMMANDS:
  serve    Start the HTTP API (and the audit scheduler when enabled)
  export   Write a party's ledger to CSV or XLSX
  audit    Audit every party and print the findings

CONFIGURATION (lowest to highest precedence):
  1. config.DefaultConfig()
  2. TOML file given with --config
  3. .env and LEDGER_* environment variables
  4. Command-line flags (--port, --db, --log-level)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the audit scheduler
  4. Close the lock backend and database

EXAMPLES:
  ./server serve --config ledger.toml
  ./server serve --db=":memory:" --port 3000
  ./server export --party c1 --format xlsx --from 2025-01-01 -o acme.xlsx
  LEDGER_LOCK_BACKEND=redis ./server serve

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration layers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Ledger reconciliation engine",
	Long: `Reconciles client and marketer debt: opening balances, orders and
payments folded into an auditable running balance, with incoming payments
split between legacy debt and order debt.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (\":memory:\" for in-memory)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
