// Package reports renders administrative spreadsheets.
package reports

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dmitrijs2005/toolmeter/internal/server/models"
	"github.com/dmitrijs2005/toolmeter/internal/server/plans"
)

// PaymentsSheet is the name of the single sheet in the payments workbook.
const PaymentsSheet = "Payments"

var paymentsHeader = []interface{}{
	"payment_uuid",
	"account_id",
	"order_id",
	"payment_id",
	"plan",
	"amount",
	"currency",
	"status",
	"paid_at",
}

// WritePayments renders payments as an XLSX workbook into w. Amounts are
// converted back to major units for readability.
func WritePayments(w io.Writer, payments []*models.Payment) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), PaymentsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := f.SetSheetRow(PaymentsSheet, "A1", &paymentsHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, p := range payments {
		row := []interface{}{
			p.ID,
			p.AccountID,
			p.OrderID,
			p.PaymentID,
			p.PlanID,
			majorUnits(p.Amount, p.Currency),
			p.Currency,
			p.Status,
			p.PaidAt.UTC().Format(time.RFC3339),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(PaymentsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func majorUnits(minor int64, currency string) float64 {
	exp, err := plans.Exponent(currency)
	if err != nil {
		return float64(minor)
	}
	v := float64(minor)
	for i := 0; i < exp; i++ {
		v /= 10
	}
	return v
}
