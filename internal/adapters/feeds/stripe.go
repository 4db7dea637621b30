package feeds

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// StripeCharge is the subset of a Stripe charge object the loader reads.
type StripeCharge struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Created     int64  `json:"created"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Customer    string `json:"customer"`
	ReceiptURL  string `json:"receipt_url"`

	BillingDetails struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"billing_details"`

	PaymentMethodDetails *struct {
		Type string `json:"type"`
	} `json:"payment_method_details"`

	// BalanceTransaction is an id, or an object when the export expanded it.
	BalanceTransaction json.RawMessage `json:"balance_transaction"`

	Refunds struct {
		Data []StripeRefund `json:"data"`
	} `json:"refunds"`
}

// StripeRefund is a refund attached to a charge.
type StripeRefund struct {
	ID      string `json:"id"`
	Amount  int64  `json:"amount"`
	Created int64  `json:"created"`
	Status  string `json:"status"`
}

// StripeLoader maps a Stripe charge list export ({"data": [...]}) to
// records. Only succeeded charges are kept; succeeded refunds become
// separate negative records.
type StripeLoader struct{}

func (StripeLoader) Format() string { return "stripe" }

func (StripeLoader) Load(r io.Reader, side ledger.Side) ([]ledger.RawTransaction, error) {
	var export struct {
		Data []StripeCharge `json:"data"`
	}
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode stripe export: %w", err)
	}

	var records []ledger.RawTransaction
	for _, charge := range export.Data {
		if charge.Status != "succeeded" {
			continue
		}
		records = append(records, ConvertStripeCharge(charge, side))
		for _, refund := range charge.Refunds.Data {
			if refund.Status != "" && refund.Status != "succeeded" {
				continue
			}
			records = append(records, convertStripeRefund(charge, refund, side))
		}
	}
	return records, nil
}

// ConvertStripeCharge maps one charge. Stripe amounts are already in minor units.
func ConvertStripeCharge(charge StripeCharge, side ledger.Side) ledger.RawTransaction {
	amount := charge.Amount
	payload := map[string]string{}
	if charge.Customer != "" {
		payload["customer_id"] = charge.Customer
	}
	if charge.PaymentMethodDetails != nil && charge.PaymentMethodDetails.Type != "" {
		payload["payment_method"] = charge.PaymentMethodDetails.Type
	}
	if charge.ReceiptURL != "" {
		payload["receipt_url"] = charge.ReceiptURL
	}
	if fee, ok := stripeFee(charge.BalanceTransaction); ok {
		payload["fee_minor"] = strconv.FormatInt(fee, 10)
	}

	counterparty := charge.BillingDetails.Name
	if counterparty == "" {
		counterparty = charge.BillingDetails.Email
	}

	return ledger.RawTransaction{
		Side:         side,
		ExternalID:   charge.ID,
		AmountMinor:  &amount,
		Currency:     strings.ToUpper(charge.Currency),
		Timestamp:    strconv.FormatInt(charge.Created, 10),
		Description:  charge.Description,
		Counterparty: counterparty,
		Payload:      nilIfEmpty(payload),
	}
}

func convertStripeRefund(charge StripeCharge, refund StripeRefund, side ledger.Side) ledger.RawTransaction {
	amount := -refund.Amount
	created := refund.Created
	if created == 0 {
		created = charge.Created
	}
	description := "Refund"
	if charge.Description != "" {
		description = "Refund " + charge.Description
	}
	payload := map[string]string{"charge_id": charge.ID}
	if charge.Customer != "" {
		payload["customer_id"] = charge.Customer
	}

	return ledger.RawTransaction{
		Side:         side,
		ExternalID:   refund.ID,
		AmountMinor:  &amount,
		Currency:     strings.ToUpper(charge.Currency),
		Timestamp:    strconv.FormatInt(created, 10),
		Description:  description,
		Counterparty: charge.BillingDetails.Name,
		Payload:      payload,
	}
}

// stripeFee reads the fee of an expanded balance transaction.
func stripeFee(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 || raw[0] != '{' {
		return 0, false
	}
	var bt struct {
		Fee *int64 `json:"fee"`
	}
	if err := json.Unmarshal(raw, &bt); err != nil || bt.Fee == nil {
		return 0, false
	}
	return *bt.Fee, true
}

func nilIfEmpty(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return m
}
