package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tendant/bewirtungsbeleg/internal/receipt"
)

const (
	orderInvoiceFirst = "invoice-first"
	orderSlipFirst    = "slip-first"
)

type reconcileOutput struct {
	Values     receipt.FormData   `json:"values"`
	Validation receipt.Validation `json:"validation"`
}

type source struct {
	path string
	kind receipt.SourceKind
}

func reconcile(_ context.Context, cmd *cli.Command) error {
	invoice := source{cmd.String("invoice"), receipt.Invoice}
	slip := source{cmd.String("slip"), receipt.CardSlip}

	var sources []source
	switch cmd.String("order") {
	case orderInvoiceFirst:
		sources = []source{invoice, slip}
	case orderSlipFirst:
		sources = []source{slip, invoice}
	default:
		return fmt.Errorf("unknown order %q", cmd.String("order"))
	}

	var initial receipt.FormData
	if path := cmd.String("initial"); path != "" {
		if err := readJSON(path, &initial); err != nil {
			return err
		}
	}

	logger := newLogger(os.Stderr, os.Getenv("LOG_LEVEL"), "text")
	acc := receipt.NewAccumulator(initial, receipt.WithLogger(logger))
	merged := 0
	for _, src := range sources {
		if src.path == "" {
			continue
		}
		var e receipt.Extraction
		if err := readJSON(src.path, &e); err != nil {
			return err
		}
		if err := acc.Merge(e, src.kind); err != nil {
			return err
		}
		merged++
	}
	if merged == 0 {
		return fmt.Errorf("at least one of --invoice or --slip is required")
	}

	w := cmd.Root().Writer
	if w == nil {
		w = os.Stdout
	}
	return writeJSON(w, reconcileOutput{
		Values:     acc.Snapshot(),
		Validation: acc.ValidateFinancialFields(),
	})
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
