package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warp/ledger-engine/export"
	"github.com/warp/ledger-engine/ledger"
)

func init() {
	rootCmd.AddCommand(exportCmd, auditCmd)

	exportCmd.Flags().String("party", "", "Party id (required)")
	exportCmd.Flags().StringP("format", "f", "csv", "Output format: csv or xlsx")
	exportCmd.Flags().String("from", "", "First day of the window (YYYY-MM-DD)")
	exportCmd.Flags().String("to", "", "Last day of the window, inclusive (YYYY-MM-DD)")
	exportCmd.Flags().Bool("expenses", false, "Include expenses tagged with the party's name")
	exportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	_ = exportCmd.MarkFlagRequired("party")

	auditCmd.Flags().Bool("fail-on-findings", false, "Exit non-zero when any party has findings")
}

// ─── export ─────────────────────────────────────────────────────────────────

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a party's ledger to CSV or XLSX",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, _ []string) error {
	party, _ := cmd.Flags().GetString("party")
	format, _ := cmd.Flags().GetString("format")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	withExpenses, _ := cmd.Flags().GetBool("expenses")
	output, _ := cmd.Flags().GetString("output")

	f := export.Format(format)
	if f != export.FormatCSV && f != export.FormatXLSX {
		return fmt.Errorf("unsupported format %q (want csv or xlsx)", format)
	}
	period, err := ledger.ParsePeriod(from, to)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cmd, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.rec.Statement(ctx, ledger.PartyID(party), period, withExpenses)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if output != "" {
		file, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create %s: %w", output, err)
		}
		defer file.Close()
		out = file
	}

	if f == export.FormatXLSX {
		err = export.WriteXLSX(out, st.Party.Name+" ledger", st.Window)
	} else {
		err = export.WriteCSV(out, st.Window)
	}
	if err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{
		"party": party, "format": format, "rows": len(st.Window.Rows), "output": output,
	}).Info("ledger exported")
	return nil
}

// ─── audit ──────────────────────────────────────────────────────────────────

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit every party and print the reports as JSON",
	Args:  cobra.NoArgs,
	RunE:  runAudit,
}

func runAudit(cmd *cobra.Command, _ []string) error {
	failOnFindings, _ := cmd.Flags().GetBool("fail-on-findings")

	ctx := cmd.Context()
	a, err := newApp(ctx, cmd, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.close()

	reports, err := a.rec.AuditAll(ctx)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(reports); encErr != nil {
		return encErr
	}
	if err != nil {
		return err
	}

	dirty := 0
	for _, rep := range reports {
		if !rep.Clean() {
			dirty++
		}
	}
	if failOnFindings && dirty > 0 {
		return fmt.Errorf("%d of %d parties have findings", dirty, len(reports))
	}
	return nil
}
