package reports

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-finance/internal/recurrence"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

const amountNumFmt = 4 // #,##0.00

// Exporter renders reports and schedules as XLSX workbooks.
type Exporter struct {
	printer *message.Printer
}

// NewExporter returns an exporter formatting amounts for tag.
func NewExporter(tag language.Tag) *Exporter {
	return &Exporter{printer: message.NewPrinter(tag)}
}

// FormatBRL renders an amount as Brazilian currency text, e.g. R$ 1.234,56.
func (e *Exporter) FormatBRL(amount decimal.Decimal) string {
	return e.printer.Sprintf("R$ %.2f", shared.RoundMoney(amount).InexactFloat64())
}

type column[T any] struct {
	Header string
	Value  func(T) any
	Amount bool
}

func writeSheet[T any](f *excelize.File, sheet string, cols []column[T], rows []T) error {
	style, err := f.NewStyle(&excelize.Style{NumFmt: amountNumFmt})
	if err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	for i, col := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, col.Header); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, bold); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for c, col := range cols {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, col.Value(row)); err != nil {
				return err
			}
			if col.Amount {
				if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func workbook(first string) *excelize.File {
	f := excelize.NewFile()
	f.SetSheetName(f.GetSheetName(0), first)
	_ = f.SetDocProps(&excelize.DocProperties{Creator: "odyssey-finance"})
	return f
}

func toBytes(f *excelize.File) ([]byte, error) {
	defer func() { _ = f.Close() }()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("reports: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// InstallmentsXLSX renders an installment schedule with a total row.
func (e *Exporter) InstallmentsXLSX(kind shared.TransactionKind, items []recurrence.Installment) ([]byte, error) {
	sheet := "Parcelas"
	f := workbook(sheet)
	cols := []column[recurrence.Installment]{
		{Header: "Parcela", Value: func(i recurrence.Installment) any { return i.Number }},
		{Header: "Vencimento", Value: func(i recurrence.Installment) any { return i.DueDate.Format("02/01/2006") }},
		{Header: "Valor", Value: func(i recurrence.Installment) any { return i.Amount.InexactFloat64() }, Amount: true},
		{Header: "Valor (R$)", Value: func(i recurrence.Installment) any { return e.FormatBRL(i.Amount) }},
	}
	if err := writeSheet(f, sheet, cols, items); err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	row := strconv.Itoa(len(items) + 2)
	_ = f.SetCellValue(sheet, "A"+row, "Total "+kindLabel(kind))
	_ = f.SetCellValue(sheet, "C"+row, total.InexactFloat64())
	_ = f.SetCellValue(sheet, "D"+row, e.FormatBRL(total))
	return toBytes(f)
}

// DREXLSX renders the income statement with a cost-center sheet.
func (e *Exporter) DREXLSX(report DRE) ([]byte, error) {
	sheet := "DRE"
	f := workbook(sheet)
	type line struct {
		Label  string
		Amount decimal.Decimal
	}
	lines := []line{{Label: "Receitas", Amount: report.Revenue}}
	for _, r := range report.Revenues {
		lines = append(lines, line{Label: "  " + categoryLabel(r.CategoryID), Amount: r.Amount})
	}
	lines = append(lines, line{Label: "Despesas", Amount: report.Expenses.Neg()})
	for _, c := range report.Costs {
		lines = append(lines, line{Label: "  " + categoryLabel(c.CategoryID), Amount: c.Amount.Neg()})
	}
	lines = append(lines, line{Label: "Resultado", Amount: report.Net})

	cols := []column[line]{
		{Header: fmt.Sprintf("Período %s a %s", report.From.Format("02/01/2006"), report.To.Format("02/01/2006")), Value: func(l line) any { return l.Label }},
		{Header: "Valor", Value: func(l line) any { return l.Amount.InexactFloat64() }, Amount: true},
		{Header: "Valor (R$)", Value: func(l line) any { return e.FormatBRL(l.Amount) }},
	}
	if err := writeSheet(f, sheet, cols, lines); err != nil {
		return nil, err
	}

	centers := "Centros de custo"
	if _, err := f.NewSheet(centers); err != nil {
		return nil, err
	}
	centerCols := []column[CostCenterLine]{
		{Header: "Centro de custo", Value: func(c CostCenterLine) any { return c.CostCenterID }},
		{Header: "Receitas", Value: func(c CostCenterLine) any { return c.Revenue.InexactFloat64() }, Amount: true},
		{Header: "Despesas", Value: func(c CostCenterLine) any { return c.Expenses.InexactFloat64() }, Amount: true},
		{Header: "Resultado", Value: func(c CostCenterLine) any { return c.Net.InexactFloat64() }, Amount: true},
	}
	if err := writeSheet(f, centers, centerCols, report.CostCenters); err != nil {
		return nil, err
	}
	return toBytes(f)
}

func categoryLabel(id *int64) string {
	if id == nil {
		return "Sem categoria"
	}
	return "Categoria " + strconv.FormatInt(*id, 10)
}

func kindLabel(kind shared.TransactionKind) string {
	switch kind {
	case shared.KindPayable:
		return "a pagar"
	case shared.KindReceivable:
		return "a receber"
	default:
		return string(kind)
	}
}
