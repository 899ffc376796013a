package services

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/financescope/financescope/internal/core/domain"
	"github.com/financescope/financescope/internal/core/ports/driving"
)

// exportHeader is the column layout of the tabular export.
var exportHeader = []string{"document", "metric", "period", "value", "unit", "page", "status", "note"}

// ExportMetrics serializes extracted metrics as tabular rows in the
// requested format: CSV (delimited text), JSON (structured records) or
// XLSX.
func ExportMetrics(metrics []domain.ExtractedMetric, format driving.ExportFormat, w io.Writer) error {
	switch format {
	case driving.FormatCSV:
		return exportCSV(metrics, w)
	case driving.FormatJSON:
		return exportJSON(metrics, w)
	case driving.FormatXLSX:
		return exportXLSX(metrics, w)
	default:
		return fmt.Errorf("%w: unknown export format %q", domain.ErrInvalidInput, format)
	}
}

// exportRow flattens one metric into the tabular column layout.
func exportRow(m domain.ExtractedMetric) []string {
	value := m.Value.Text
	if value == "" {
		value = m.RawValue
	}

	page := ""
	if len(m.Citations) > 0 {
		page = strconv.Itoa(m.Citations[0].Page)
	}

	return []string{
		m.DocumentID,
		m.Name,
		m.Period,
		value,
		m.Value.Unit,
		page,
		string(m.Status),
		m.Note,
	}
}

func exportCSV(metrics []domain.ExtractedMetric, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, m := range metrics {
		if err := cw.Write(exportRow(m)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// jsonMetric is the structured record form of one exported metric.
type jsonMetric struct {
	Document  string            `json:"document"`
	Metric    string            `json:"metric"`
	Period    string            `json:"period,omitempty"`
	Value     string            `json:"value"`
	Unit      string            `json:"unit,omitempty"`
	Status    string            `json:"status"`
	Note      string            `json:"note,omitempty"`
	Citations []domain.Citation `json:"citations,omitempty"`
}

func exportJSON(metrics []domain.ExtractedMetric, w io.Writer) error {
	records := make([]jsonMetric, len(metrics))
	for i, m := range metrics {
		value := m.Value.Text
		if value == "" {
			value = m.RawValue
		}
		records[i] = jsonMetric{
			Document:  m.DocumentID,
			Metric:    m.Name,
			Period:    m.Period,
			Value:     value,
			Unit:      m.Value.Unit,
			Status:    string(m.Status),
			Note:      m.Note,
			Citations: m.Citations,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func exportXLSX(metrics []domain.ExtractedMetric, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Metrics"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for col, title := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return err
		}
	}

	for row, m := range metrics {
		for col, value := range exportRow(m) {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}
