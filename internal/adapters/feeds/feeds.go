// Package feeds loads raw records from exported files. Each loader only
// maps fields; parsing amounts and timestamps is left to the normalizer.
package feeds

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// Loader reads one export format.
type Loader interface {
	// Format is the name used to select the loader, e.g. "stripe".
	Format() string
	// Load decodes r and returns its records tagged with side.
	Load(r io.Reader, side ledger.Side) ([]ledger.RawTransaction, error)
}

var loaders = map[string]Loader{}

func register(l Loader) {
	loaders[l.Format()] = l
}

func init() {
	register(JSONLoader{})
	register(CSVLoader{})
	register(StripeLoader{})
	register(QuickBooksLoader{})
}

// ForFormat returns the loader registered under name.
func ForFormat(name string) (Loader, error) {
	l, ok := loaders[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown feed format %q (known: %s)", name, strings.Join(Formats(), ", "))
	}
	return l, nil
}

// Formats lists the registered format names.
func Formats() []string {
	names := make([]string, 0, len(loaders))
	for name := range loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFile opens path and decodes it with the loader for format.
func LoadFile(path, format string, side ledger.Side) ([]ledger.RawTransaction, error) {
	loader, err := ForFormat(format)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()

	records, err := loader.Load(f, side)
	if err != nil {
		return nil, fmt.Errorf("load %s feed %s: %w", loader.Format(), path, err)
	}
	return records, nil
}

// JSONLoader reads records already in RawTransaction shape, either as a bare
// array or wrapped as {"records": [...]}.
type JSONLoader struct{}

func (JSONLoader) Format() string { return "json" }

func (JSONLoader) Load(r io.Reader, side ledger.Side) ([]ledger.RawTransaction, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	var records []ledger.RawTransaction
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to decode records: %w", err)
		}
	} else {
		var wrapped struct {
			Records []ledger.RawTransaction `json:"records"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode records: %w", err)
		}
		records = wrapped.Records
	}

	for i := range records {
		if records[i].Side == "" {
			records[i].Side = side
		}
	}
	return records, nil
}
