package feeds

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/normalizer"
)

const stripeExport = `{
  "object": "list",
  "data": [
    {
      "id": "ch_1",
      "amount": 10000,
      "currency": "usd",
      "created": 1740823200,
      "status": "succeeded",
      "description": "Invoice 1001",
      "customer": "cus_42",
      "receipt_url": "https://pay.example.com/r/ch_1",
      "billing_details": {"name": "Acme Corp", "email": "ap@acme.test"},
      "payment_method_details": {"type": "card"},
      "balance_transaction": {"id": "txn_1", "fee": 320, "net": 9680},
      "refunds": {"data": [{"id": "re_1", "amount": 2500, "created": 1741000000, "status": "succeeded"}]}
    },
    {
      "id": "ch_2",
      "amount": 500,
      "currency": "usd",
      "created": 1740823300,
      "status": "failed"
    },
    {
      "id": "ch_3",
      "amount": 4200,
      "currency": "eur",
      "created": 1740823400,
      "status": "succeeded",
      "balance_transaction": "txn_3",
      "billing_details": {"email": "billing@globex.test"}
    }
  ]
}`

const quickBooksExport = `{
  "QueryResponse": {
    "Payment": [
      {
        "Id": "145",
        "TotalAmt": 96.80,
        "TxnDate": "2025-03-03",
        "PrivateNote": "Stripe payout Acme",
        "CustomerRef": {"value": "58", "name": "Acme Corp"},
        "PaymentMethodRef": {"value": "3", "name": "Credit Card"},
        "DepositToAccountRef": {"value": "35", "name": "Checking"},
        "PaymentRefNum": "PO-7"
      },
      {
        "Id": "146",
        "TotalAmt": "12.5",
        "TxnDate": "2025-03-04",
        "CurrencyRef": {"value": "CAD"}
      }
    ]
  }
}`

func TestStripeLoader_Load(t *testing.T) {
	// Act
	records, err := StripeLoader{}.Load(strings.NewReader(stripeExport), ledger.SideA)

	// Assert
	require.NoError(t, err)
	require.Len(t, records, 3, "failed charge skipped, refund added")

	charge := records[0]
	assert.Equal(t, ledger.SideA, charge.Side)
	assert.Equal(t, "ch_1", charge.ExternalID)
	require.NotNil(t, charge.AmountMinor)
	assert.Equal(t, int64(10000), *charge.AmountMinor)
	assert.Equal(t, "USD", charge.Currency)
	assert.Equal(t, "1740823200", charge.Timestamp)
	assert.Equal(t, "Acme Corp", charge.Counterparty)
	assert.Equal(t, "320", charge.Payload["fee_minor"])
	assert.Equal(t, "card", charge.Payload["payment_method"])
	assert.Equal(t, "cus_42", charge.Payload["customer_id"])

	refund := records[1]
	assert.Equal(t, "re_1", refund.ExternalID)
	assert.Equal(t, int64(-2500), *refund.AmountMinor)
	assert.Equal(t, "Refund Invoice 1001", refund.Description)
	assert.Equal(t, "ch_1", refund.Payload["charge_id"])

	unexpanded := records[2]
	assert.Equal(t, "EUR", unexpanded.Currency)
	assert.Equal(t, "billing@globex.test", unexpanded.Counterparty)
	assert.NotContains(t, unexpanded.Payload, "fee_minor")
}

func TestQuickBooksLoader_Load(t *testing.T) {
	records, err := QuickBooksLoader{}.Load(strings.NewReader(quickBooksExport), ledger.SideB)

	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, ledger.SideB, first.Side)
	assert.Equal(t, "145", first.ExternalID)
	assert.Equal(t, "96.8", first.Amount)
	assert.Nil(t, first.AmountMinor)
	assert.Equal(t, "USD", first.Currency)
	assert.Equal(t, "2025-03-03", first.Timestamp)
	assert.Equal(t, "Acme Corp", first.Counterparty)
	assert.Equal(t, "Checking", first.Payload["deposit_to_account"])
	assert.Equal(t, "PO-7", first.Payload["reference"])

	second := records[1]
	assert.Equal(t, "12.5", second.Amount)
	assert.Equal(t, "CAD", second.Currency)
	assert.Nil(t, second.Payload)
}

func TestLoaders_NormalizeCleanly(t *testing.T) {
	stripe, err := StripeLoader{}.Load(strings.NewReader(stripeExport), ledger.SideA)
	require.NoError(t, err)
	qb, err := QuickBooksLoader{}.Load(strings.NewReader(quickBooksExport), ledger.SideB)
	require.NoError(t, err)

	n := normalizer.New(normalizer.DefaultConfig(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)))

	charge := n.Normalize(stripe[0])
	assert.False(t, charge.Invalid, charge.InvalidReason)
	assert.Equal(t, int64(10000), charge.AmountMinor)
	require.NotNil(t, charge.FeeAdjustedAmount)
	assert.Equal(t, int64(9680), *charge.FeeAdjustedAmount)

	payment := n.Normalize(qb[0])
	assert.False(t, payment.Invalid, payment.InvalidReason)
	assert.Equal(t, int64(9680), payment.AmountMinor)
	assert.True(t, payment.DateOnly)
}

func TestJSONLoader_Load(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "bare array",
			input: `[{"external_id": "a1", "amount": "10.00", "currency": "USD", "timestamp": "2025-03-01"}]`,
		},
		{
			name:  "wrapped",
			input: `{"records": [{"external_id": "a1", "amount": "10.00", "currency": "USD", "timestamp": "2025-03-01"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := JSONLoader{}.Load(strings.NewReader(tt.input), ledger.SideB)

			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, ledger.SideB, records[0].Side)
			assert.Equal(t, "a1", records[0].ExternalID)
		})
	}
}

func TestJSONLoader_KeepsExplicitSide(t *testing.T) {
	records, err := JSONLoader{}.Load(strings.NewReader(`[{"side": "source_a", "external_id": "a1"}]`), ledger.SideB)

	require.NoError(t, err)
	assert.Equal(t, ledger.SideA, records[0].Side)
}

func TestLoaders_InvalidJSON(t *testing.T) {
	for _, format := range Formats() {
		t.Run(format, func(t *testing.T) {
			loader, err := ForFormat(format)
			require.NoError(t, err)

			_, err = loader.Load(strings.NewReader("{not json"), ledger.SideA)
			assert.Error(t, err)
		})
	}
}

func TestForFormat(t *testing.T) {
	assert.Equal(t, []string{"csv", "json", "quickbooks", "stripe"}, Formats())

	loader, err := ForFormat(" Stripe ")
	require.NoError(t, err)
	assert.Equal(t, "stripe", loader.Format())

	_, err = ForFormat("xero")
	assert.ErrorContains(t, err, "unknown feed format")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payments.json")
	require.NoError(t, os.WriteFile(path, []byte(quickBooksExport), 0644))

	records, err := LoadFile(path, "quickbooks", ledger.SideB)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"), "json", ledger.SideA)
	assert.Error(t, err)
}

const bankStatement = `id,date,amount,currency,description,payee,bank
dep_1,2025-03-05,75.00,usd,Invoice 1001 ACME,ACME Corp,first-national
dep_2,2025-03-06,-12.50,USD,Card fee,,first-national
`

func TestCSVLoader_Load(t *testing.T) {
	// Arrange
	loader, err := ForFormat("csv")
	require.NoError(t, err)

	// Act
	records, err := loader.Load(strings.NewReader(bankStatement), ledger.SideB)

	// Assert
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, ledger.SideB, first.Side)
	assert.Equal(t, "dep_1", first.ExternalID)
	assert.Equal(t, "75.00", first.Amount)
	assert.Equal(t, "USD", first.Currency)
	assert.Equal(t, "2025-03-05", first.Timestamp)
	assert.Equal(t, "Invoice 1001 ACME", first.Description)
	assert.Equal(t, "ACME Corp", first.Counterparty)
	assert.Equal(t, map[string]string{"bank": "first-national"}, first.Payload)

	assert.Equal(t, "-12.50", records[1].Amount)
	assert.Empty(t, records[1].Counterparty)
}

func TestCSVLoader_MissingColumn(t *testing.T) {
	_, err := CSVLoader{}.Load(strings.NewReader("id,amount\nx,1.00\n"), ledger.SideA)

	assert.ErrorContains(t, err, "missing column: timestamp")
}
