package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/financescope/financescope/internal/core/domain"
	"github.com/financescope/financescope/internal/core/ports/driving"
)

var (
	extractMetrics []string
	extractDocs    []string
	extractFormat  string
	extractOutput  string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract validated metrics from ingested documents",
	Long: `Extracts structured metrics (revenue, margins, dates, counts) from
ingested documents. Each value is normalized, validated against its
expected type and optional bounds, and exported with its page citation
and validation status.

Metrics are specified as name:kind[:period[:min[:max]]], e.g.

  --metric "net revenue:currency:Q3 2024"
  --metric "operating margin:percent:FY2024:0:100"

Supported kinds: currency, percent, date, count.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringSliceVarP(&extractMetrics, "metric", "m", nil, "metric to extract (repeatable, required)")
	extractCmd.Flags().StringSliceVarP(&extractDocs, "doc", "d", nil, "restrict to document IDs (repeatable)")
	extractCmd.Flags().StringVarP(&extractFormat, "format", "f", "csv", "output format: csv, json or xlsx")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, _ []string) error {
	if err := initServices(); err != nil {
		return err
	}
	if extractService == nil {
		return errors.New("extract service not configured")
	}
	if len(extractMetrics) == 0 {
		return errors.New("at least one --metric is required")
	}

	format := driving.ExportFormat(extractFormat)
	switch format {
	case driving.FormatCSV, driving.FormatJSON, driving.FormatXLSX:
	default:
		return fmt.Errorf("unknown format %q (want csv, json or xlsx)", extractFormat)
	}
	if format == driving.FormatXLSX && extractOutput == "" {
		return errors.New("xlsx output requires --output")
	}

	specs := make([]domain.MetricSpec, 0, len(extractMetrics))
	for _, raw := range extractMetrics {
		spec, err := parseMetricSpec(raw)
		if err != nil {
			return err
		}
		specs = append(specs, spec)
	}

	metrics, err := extractService.Extract(cmd.Context(), extractDocs, specs)
	if err != nil {
		return fmt.Errorf("extract failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if extractOutput != "" {
		f, err := os.Create(extractOutput)
		if err != nil {
			return fmt.Errorf("creating %s: %w", extractOutput, err)
		}
		defer f.Close()
		out = f
	}

	if err := extractService.Export(metrics, format, out); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if extractOutput != "" {
		cmd.Printf("wrote %d metrics to %s\n", len(metrics), extractOutput)
	}
	return nil
}

// parseMetricSpec parses the name:kind[:period[:min[:max]]] flag grammar.
func parseMetricSpec(raw string) (domain.MetricSpec, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 {
		return domain.MetricSpec{}, fmt.Errorf("invalid metric %q: want name:kind[:period[:min[:max]]]", raw)
	}

	spec := domain.MetricSpec{
		Name: strings.TrimSpace(parts[0]),
		Kind: domain.ValueKind(strings.TrimSpace(parts[1])),
	}
	if spec.Name == "" {
		return domain.MetricSpec{}, fmt.Errorf("invalid metric %q: empty name", raw)
	}
	switch spec.Kind {
	case domain.KindCurrency, domain.KindPercent, domain.KindDate, domain.KindCount:
	default:
		return domain.MetricSpec{}, fmt.Errorf("invalid metric %q: unknown kind %q", raw, parts[1])
	}

	if len(parts) > 2 {
		spec.Period = strings.TrimSpace(parts[2])
	}
	if len(parts) > 3 {
		min, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil {
			return domain.MetricSpec{}, fmt.Errorf("invalid metric %q: bad min %q", raw, parts[3])
		}
		spec.Min = &min
	}
	if len(parts) > 4 {
		max, err := strconv.ParseFloat(strings.TrimSpace(parts[4]), 64)
		if err != nil {
			return domain.MetricSpec{}, fmt.Errorf("invalid metric %q: bad max %q", raw, parts[4])
		}
		spec.Max = &max
	}

	return spec, nil
}
