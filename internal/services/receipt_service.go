package services

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/phpdave11/gofpdf"
	"github.com/skulbus/skulbus-backend/internal/models"
)

// ReceiptSource loads the joined view of a payment
type ReceiptSource interface {
	GetReceipt(ctx context.Context, paymentID uuid.UUID) (*models.PaymentReceipt, error)
}

// ReceiptService renders printable payment receipts
type ReceiptService struct {
	payments ReceiptSource
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(payments ReceiptSource) *ReceiptService {
	return &ReceiptService{payments: payments}
}

// Render returns a one-page PDF receipt for a completed payment
func (s *ReceiptService) Render(ctx context.Context, actor models.Actor, paymentID uuid.UUID) ([]byte, error) {
	receipt, err := s.payments.GetReceipt(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !(actor.IsParent() && receipt.ParentID == actor.UserID) {
		return nil, models.ErrForbidden
	}
	if receipt.Status != models.PaymentStatusCompleted {
		return nil, models.ErrReceiptUnavailable
	}

	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetTitle("SkulBus Receipt", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "SKULBUS PAYMENT RECEIPT")
	pdf.Ln(12)

	ref := "-"
	if receipt.TransactionRef != nil {
		ref = *receipt.TransactionRef
	}
	paidAt := "-"
	if receipt.PaidAt != nil {
		paidAt = receipt.PaidAt.Format("2006-01-02 15:04")
	}

	pdf.SetFont("Helvetica", "", 11)
	rows := []string{
		"Receipt No : " + receipt.ID.String(),
		"M-Pesa Ref : " + ref,
		"Paid At    : " + paidAt,
		"Student    : " + receipt.StudentName,
		"Route      : " + receipt.RouteRegion,
		"Departure  : " + receipt.DepartureAt.Format("2006-01-02 15:04"),
		"Phone      : " + receipt.Phone,
	}
	for _, row := range rows {
		pdf.Cell(0, 7, row)
		pdf.Ln(7)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Amount Paid: "+formatKES(receipt.Amount))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "This receipt covers one seat for the student named above.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

// formatKES renders whole shillings with thousands separators, e.g. "KES 1,250"
func formatKES(amount int64) string {
	digits := strconv.FormatInt(amount, 10)
	negative := false
	if amount < 0 {
		negative = true
		digits = digits[1:]
	}

	var out []byte
	for i, d := range []byte(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, d)
	}

	if negative {
		return "KES -" + string(out)
	}
	return "KES " + string(out)
}
