package feeds

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// csvColumns maps accepted header names onto record fields.
var csvColumns = map[string]string{
	"external_id":     "external_id",
	"id":              "external_id",
	"trxid":           "external_id",
	"amount":          "amount",
	"currency":        "currency",
	"timestamp":       "timestamp",
	"date":            "timestamp",
	"transactiontime": "timestamp",
	"description":     "description",
	"memo":            "description",
	"counterparty":    "counterparty",
	"payee":           "counterparty",
}

// CSVLoader reads a bank-statement style CSV with a header row. Unknown
// columns are kept in the payload under their header name.
type CSVLoader struct{}

func (CSVLoader) Format() string { return "csv" }

func (CSVLoader) Load(r io.Reader, side ledger.Side) ([]ledger.RawTransaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	fields := make([]string, len(headers))
	seen := map[string]bool{}
	for i, h := range headers {
		name := strings.ToLower(strings.TrimSpace(h))
		if field, ok := csvColumns[name]; ok {
			fields[i] = field
			seen[field] = true
		} else {
			fields[i] = name
		}
	}
	for _, required := range []string{"external_id", "amount", "timestamp"} {
		if !seen[required] {
			return nil, fmt.Errorf("missing column: %s", required)
		}
	}

	var records []ledger.RawTransaction
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}

		rec := ledger.RawTransaction{Side: side}
		for i, value := range row {
			if i >= len(fields) {
				break
			}
			value = strings.TrimSpace(value)
			switch fields[i] {
			case "external_id":
				rec.ExternalID = value
			case "amount":
				rec.Amount = value
			case "currency":
				rec.Currency = strings.ToUpper(value)
			case "timestamp":
				rec.Timestamp = value
			case "description":
				rec.Description = value
			case "counterparty":
				rec.Counterparty = value
			default:
				if value == "" || fields[i] == "" {
					continue
				}
				if rec.Payload == nil {
					rec.Payload = map[string]string{}
				}
				rec.Payload[fields[i]] = value
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
