package main

import (
	"github.com/spf13/cobra"

	clierrors "github.com/QKD-VITAP/qkdctl/internal/errors"
	"github.com/QKD-VITAP/qkdctl/internal/output"
)

func newMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Inspect aggregate simulation metrics",
	}

	cmd.AddCommand(newMetricsQBERCmd())

	return cmd
}

func newMetricsQBERCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "qber",
		Short: "Show quantum bit error rates across stored runs",
		Long: `Report the average, minimum, and maximum quantum bit error rate
across all recorded simulations, plus the most recent values.`,
		Example: `  qkdctl metrics qber
  qkdctl metrics qber -o json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			outFormat, err := output.ParseFormat(format)
			if err != nil {
				return clierrors.InvalidArgument(err.Error())
			}

			sess, _, err := newAuthenticatedSession()
			if err != nil {
				return err
			}

			metrics, err := sess.Client().QBERMetrics(cmd.Context())
			if err != nil {
				return clierrors.APIUnreachable(sess.Client().BaseURL(), err)
			}

			if outFormat != output.FormatText {
				return out.PrintFormat(outFormat, metrics)
			}

			if metrics.TotalSimulations == 0 {
				out.Muted("No simulations recorded yet")
				return nil
			}

			out.Print("Simulations: %d\n", metrics.TotalSimulations)
			out.Print("Average QBER: %.4f\n", metrics.AverageQBER)
			out.Print("Min QBER:     %.4f\n", metrics.MinQBER)
			out.Print("Max QBER:     %.4f\n", metrics.MaxQBER)

			if len(metrics.RecentQBER) > 0 {
				out.Print("Recent:      ")

				for _, q := range metrics.RecentQBER {
					out.Print(" %.4f", q)
				}

				out.Println()
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format: text, json, yaml, toml")

	return cmd
}

func newStatsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate simulator statistics",
		Long: `Report platform-wide totals: simulation count, average error rate,
average key rate, and a breakdown of attack scenarios.`,
		Example: `  qkdctl stats
  qkdctl stats -o yaml`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			outFormat, err := output.ParseFormat(format)
			if err != nil {
				return clierrors.InvalidArgument(err.Error())
			}

			sess, _, err := newAuthenticatedSession()
			if err != nil {
				return err
			}

			stats, err := sess.Client().Statistics(cmd.Context())
			if err != nil {
				return clierrors.APIUnreachable(sess.Client().BaseURL(), err)
			}

			if outFormat != output.FormatText {
				return out.PrintFormat(outFormat, stats)
			}

			out.Print("Total simulations: %d\n", stats.TotalSimulations)
			out.Print("Average QBER:      %.4f\n", stats.AverageQBER)
			out.Print("Average key rate:  %.4f\n", stats.AverageKeyRate)

			if len(stats.AttackBreakdown) > 0 {
				out.Println()
				out.Print("Attack scenarios:\n")

				for attackType, count := range stats.AttackBreakdown {
					out.Print("  %-18s %d\n", attackType, count)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format: text, json, yaml, toml")

	return cmd
}
