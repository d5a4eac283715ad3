package underpayment

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/ehr/revcycle/pkg/money"
)

const (
	sheetClaims = "Underpayments"
	sheetLines  = "Lines"
	// excelize built-in number format 4 is #,##0.00
	numFmtMoney = 4
)

var (
	claimHeader = []interface{}{
		"Claim Number", "Status", "Payer ID", "Payer Name", "Service Date", "Contract %",
		"Billed", "Expected", "Paid", "Variance", "Variance %", "Underpaid",
	}
	lineHeader = []interface{}{
		"Claim Number", "Line", "CPT", "Units", "Basis", "Billed", "Baseline", "Expected", "Paid (est.)", "Variance",
	}
)

// WriteXLSX renders the report as a workbook with a claim sheet and a
// line detail sheet.
func WriteXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetClaims); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetLines); err != nil {
		return fmt.Errorf("add lines sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: numFmtMoney})
	if err != nil {
		return fmt.Errorf("money style: %w", err)
	}

	if err := writeRow(f, sheetClaims, 1, claimHeader); err != nil {
		return err
	}
	if err := writeRow(f, sheetLines, 1, lineHeader); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheetClaims, 1, 1, header); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetRowStyle(sheetLines, 1, 1, header); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	lineRow := 2
	for i, a := range r.Claims {
		contract := ""
		if a.ContractPercent != nil {
			contract = a.ContractPercent.String()
		}
		serviceDate := ""
		if a.ServiceDate != nil {
			serviceDate = a.ServiceDate.Format("2006-01-02")
		}
		row := []interface{}{
			a.ClaimNumber, string(a.Status), derefStr(a.PayerID), derefStr(a.PayerName), serviceDate, contract,
			dollars(a.BilledCents), dollars(a.ExpectedCents), dollars(a.PaidCents), dollars(a.VarianceCents),
			a.VariancePercent.InexactFloat64(), a.IsUnderpaid,
		}
		if err := writeRow(f, sheetClaims, i+2, row); err != nil {
			return err
		}

		for _, l := range a.Lines {
			row := []interface{}{
				a.ClaimNumber, l.LineIndex + 1, l.CPT, l.Units, l.Basis,
				dollars(l.BilledCents), dollars(l.BaselineCents), dollars(l.ExpectedCents),
				dollars(l.PaidCents), dollars(l.VarianceCents),
			}
			if err := writeRow(f, sheetLines, lineRow, row); err != nil {
				return err
			}
			lineRow++
		}
	}

	if n := len(r.Claims); n > 0 {
		if err := f.SetCellStyle(sheetClaims, "G2", fmt.Sprintf("J%d", n+1), moneyStyle); err != nil {
			return fmt.Errorf("style amounts: %w", err)
		}
	}
	if lineRow > 2 {
		if err := f.SetCellStyle(sheetLines, "F2", fmt.Sprintf("J%d", lineRow-1), moneyStyle); err != nil {
			return fmt.Errorf("style amounts: %w", err)
		}
	}

	summaryRow := len(r.Claims) + 3
	summary := []interface{}{
		"Underpaid claims", r.Summary.Count,
		"Total underpayment", dollars(r.Summary.TotalUnderpaymentCents),
		"Average variance %", r.Summary.AverageVariancePercent.InexactFloat64(),
		"Threshold %", r.ThresholdPercent.InexactFloat64(),
	}
	if err := writeRow(f, sheetClaims, summaryRow, summary); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func dollars(cents int64) float64 {
	return money.FromCents(cents).InexactFloat64()
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
