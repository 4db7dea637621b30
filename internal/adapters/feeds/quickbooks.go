package feeds

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// QuickBooksRef is a QuickBooks entity reference.
type QuickBooksRef struct {
	Value string `json:"value"`
	Name  string `json:"name"`
}

// QuickBooksPayment is the subset of a QuickBooks Payment the loader reads.
type QuickBooksPayment struct {
	ID                  string          `json:"Id"`
	TotalAmt            decimal.Decimal `json:"TotalAmt"`
	TxnDate             string          `json:"TxnDate"`
	PrivateNote         string          `json:"PrivateNote"`
	CustomerRef         *QuickBooksRef  `json:"CustomerRef"`
	CurrencyRef         *QuickBooksRef  `json:"CurrencyRef"`
	PaymentMethodRef    *QuickBooksRef  `json:"PaymentMethodRef"`
	DepositToAccountRef *QuickBooksRef  `json:"DepositToAccountRef"`
	PaymentRefNum       string          `json:"PaymentRefNum"`
}

// QuickBooksLoader maps a QuickBooks payment query response
// ({"QueryResponse": {"Payment": [...]}}) to records.
type QuickBooksLoader struct{}

func (QuickBooksLoader) Format() string { return "quickbooks" }

func (QuickBooksLoader) Load(r io.Reader, side ledger.Side) ([]ledger.RawTransaction, error) {
	var export struct {
		QueryResponse struct {
			Payment []QuickBooksPayment `json:"Payment"`
		} `json:"QueryResponse"`
	}
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode quickbooks export: %w", err)
	}

	records := make([]ledger.RawTransaction, 0, len(export.QueryResponse.Payment))
	for _, payment := range export.QueryResponse.Payment {
		records = append(records, ConvertQuickBooksPayment(payment, side))
	}
	return records, nil
}

// ConvertQuickBooksPayment maps one payment. QuickBooks amounts are major
// units; the decimal text is passed through unchanged.
func ConvertQuickBooksPayment(payment QuickBooksPayment, side ledger.Side) ledger.RawTransaction {
	currency := "USD"
	if payment.CurrencyRef != nil && payment.CurrencyRef.Value != "" {
		currency = payment.CurrencyRef.Value
	}

	payload := map[string]string{}
	var counterparty string
	if payment.CustomerRef != nil {
		counterparty = payment.CustomerRef.Name
		if payment.CustomerRef.Value != "" {
			payload["customer_id"] = payment.CustomerRef.Value
		}
	}
	if payment.PaymentMethodRef != nil && payment.PaymentMethodRef.Name != "" {
		payload["payment_method"] = payment.PaymentMethodRef.Name
	}
	if payment.DepositToAccountRef != nil && payment.DepositToAccountRef.Name != "" {
		payload["deposit_to_account"] = payment.DepositToAccountRef.Name
	}
	if payment.PaymentRefNum != "" {
		payload["reference"] = payment.PaymentRefNum
	}

	return ledger.RawTransaction{
		Side:         side,
		ExternalID:   payment.ID,
		Amount:       payment.TotalAmt.String(),
		Currency:     currency,
		Timestamp:    payment.TxnDate,
		Description:  payment.PrivateNote,
		Counterparty: counterparty,
		Payload:      nilIfEmpty(payload),
	}
}
