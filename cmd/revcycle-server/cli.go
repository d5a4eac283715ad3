package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/ehr/revcycle/internal/config"
	"github.com/ehr/revcycle/internal/domain/era"
	"github.com/ehr/revcycle/internal/domain/underpayment"
	"github.com/ehr/revcycle/internal/platform/auth"
	"github.com/ehr/revcycle/internal/platform/db"
)

// cliActor is recorded as the actor for batch work run from the command line.
const cliActor = "system:cli"

// withTenantApp loads config, wires the services and runs fn on a connection
// pinned to tenant.
func withTenantApp(tenant string, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if tenant == "" {
		tenant = cfg.DefaultTenant
	}
	logger := newLogger(cfg.Env)

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	a, err := newApp(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, release, err := db.AcquireTenant(ctx, pool, tenant)
	if err != nil {
		return err
	}
	defer release()
	return fn(auth.WithUser(ctx, cliActor, "admin"), a)
}

func eraCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "era",
		Short: "Electronic remittance advice",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Reconcile and post an ERA file (.json or .json.gz)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			tenant, _ := cmd.Flags().GetString("tenant")
			quiet, _ := cmd.Flags().GetBool("quiet")
			if path == "" {
				return fmt.Errorf("--file is required")
			}

			req, err := era.ReadImportFile(path)
			if err != nil {
				return err
			}

			return withTenantApp(tenant, func(ctx context.Context, a *app) error {
				var opts []era.ImportOption
				var p *mpb.Progress
				if !quiet {
					p = mpb.New(mpb.WithWidth(60), mpb.WithOutput(os.Stderr))
					bar := p.AddBar(int64(len(req.Claims)),
						mpb.PrependDecorators(
							decor.Name(derefName(req.Filename), decor.WCSyncSpaceR),
							decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
						),
						mpb.AppendDecorators(decor.Percentage()),
					)
					opts = append(opts, era.OnRecord(func(int) { bar.Increment() }))
				}

				res, err := a.reconciler.Import(ctx, req, opts...)
				if p != nil {
					p.Wait()
				}
				if err != nil {
					return err
				}
				printImportResult(res)
				return nil
			})
		},
	}
	importCmd.Flags().String("file", "", "Path to the ERA file")
	importCmd.Flags().String("tenant", "", "Tenant identifier (default DEFAULT_TENANT)")
	importCmd.Flags().Bool("quiet", false, "Disable the progress bar")
	cmd.AddCommand(importCmd)

	return cmd
}

func printImportResult(res *era.ImportResult) {
	s := res.Summary
	fmt.Fprintf(stdout, "ERA %s (%s)\n", res.EraID, res.Filename)
	fmt.Fprintf(stdout, "  claims:       %d\n", s.TotalClaims)
	fmt.Fprintf(stdout, "  matched:      %d (auto-posted %d)\n", s.Matched, s.AutoPosted)
	fmt.Fprintf(stdout, "  unmatched:    %d\n", s.Unmatched)
	fmt.Fprintf(stdout, "  denied:       %d\n", s.Denied)
	fmt.Fprintf(stdout, "  partial:      %d\n", s.PartialPayments)
	fmt.Fprintf(stdout, "  paid:         %s\n", s.TotalPaid.StringFixed(2))
	fmt.Fprintf(stdout, "  adjustments:  %s\n", s.TotalAdjustments.StringFixed(2))
	for _, e := range res.Errors {
		fmt.Fprintf(stdout, "  error: record %d (%s): %s\n", e.Index, e.ClaimNumber, e.Error)
	}
}

func underpaymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "underpayments",
		Short: "Underpayment reporting",
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the underpayment report to an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			tenant, _ := cmd.Flags().GetString("tenant")
			topN, _ := cmd.Flags().GetInt("top")
			underpaidOnly, _ := cmd.Flags().GetBool("underpaid-only")
			if out == "" {
				return fmt.Errorf("--out is required")
			}

			return withTenantApp(tenant, func(ctx context.Context, a *app) error {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				opts := underpayment.ReportOptions{TopN: topN, UnderpaidOnly: underpaidOnly}
				if err := a.underpayment.ExportReport(ctx, f, opts); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Wrote %s\n", out)
				return nil
			})
		},
	}
	exportCmd.Flags().String("out", "underpayments.xlsx", "Output file")
	exportCmd.Flags().String("tenant", "", "Tenant identifier (default DEFAULT_TENANT)")
	exportCmd.Flags().Int("top", 0, "Number of claims to include (default UNDERPAYMENT_TOP_N)")
	exportCmd.Flags().Bool("underpaid-only", false, "Leave out claims at or under the threshold")
	cmd.AddCommand(exportCmd)

	return cmd
}

func derefName(s *string) string {
	if s == nil || *s == "" {
		return "era"
	}
	return *s
}
