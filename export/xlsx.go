package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/money"
)

const sheetName = "Ledger"

// WriteXLSX writes the window as a single-sheet workbook. Amount cells are
// numeric with a two-decimal format.
func WriteXLSX(out io.Writer, title string, w ledger.Window) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: title}); err != nil {
		return fmt.Errorf("set doc props: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	amountFmt := "#,##0.00"
	amount, err := f.NewStyle(&excelize.Style{CustomNumFmt: &amountFmt})
	if err != nil {
		return err
	}

	for i, h := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(Columns), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, bold); err != nil {
		return err
	}

	for i, l := range lines(w) {
		row := i + 2
		values := []any{
			l.timestamp, l.kind, l.description, l.quantity,
			number(l.unitPrice), number(l.orderAmount), number(l.payment), number(l.expense),
			l.orderBal.Float64(), l.netBal.Float64(),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
		from, _ := excelize.CoordinatesToCellName(5, row)
		to, _ := excelize.CoordinatesToCellName(len(Columns), row)
		if err := f.SetCellStyle(sheetName, from, to, amount); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 22); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "C", "C", 40); err != nil {
		return err
	}
	if err := f.Write(out); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// number returns an empty cell for nil so blank columns stay blank.
func number(m *money.Money) any {
	if m == nil {
		return ""
	}
	return m.Float64()
}
