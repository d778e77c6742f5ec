// Package receipt merges OCR extractions of restaurant receipts into one
// consistent expense form.
package receipt

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tendant/bewirtungsbeleg/internal/domain"
)

// Extraction is the OCR result for one receipt image. Amounts use German
// notation, dates DD.MM.YYYY.
type Extraction struct {
	RestaurantName      string `json:"restaurantName,omitempty"`
	RestaurantAnschrift string `json:"restaurantAnschrift,omitempty"`
	Gesamtbetrag        string `json:"gesamtbetrag,omitempty"`
	Mwst                string `json:"mwst,omitempty"`
	Netto               string `json:"netto,omitempty"`
	Datum               string `json:"datum,omitempty"`
	Trinkgeld           string `json:"trinkgeld,omitempty"`
}

// SourceKind classifies the receipt an extraction came from.
type SourceKind string

const (
	Invoice  SourceKind = "Rechnung"
	CardSlip SourceKind = "Kreditkartenbeleg"
)

func (k SourceKind) Valid() bool {
	return k == Invoice || k == CardSlip
}

// ParseSourceKind accepts the German classification names and their English
// equivalents, case-insensitively.
func ParseSourceKind(s string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rechnung", "invoice":
		return Invoice, nil
	case "kreditkartenbeleg", "card_slip", "cardslip":
		return CardSlip, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidClassification, s)
}

// FormData is the expense form ("Bewirtungsbeleg"). Amounts are kept in dot
// notation with two decimals.
type FormData struct {
	Datum                    *time.Time `json:"datum"`
	RestaurantName           string     `json:"restaurantName"`
	RestaurantAnschrift      string     `json:"restaurantAnschrift"`
	RestaurantPlz            string     `json:"restaurantPlz"`
	RestaurantOrt            string     `json:"restaurantOrt"`
	Teilnehmer               string     `json:"teilnehmer"`
	Anlass                   string     `json:"anlass"`
	Gesamtbetrag             string     `json:"gesamtbetrag"`
	GesamtbetragMwst         string     `json:"gesamtbetragMwst"`
	GesamtbetragNetto        string     `json:"gesamtbetragNetto"`
	Trinkgeld                string     `json:"trinkgeld"`
	TrinkgeldMwst            string     `json:"trinkgeldMwst"`
	KreditkartenBetrag       string     `json:"kreditkartenBetrag"`
	Zahlungsart              string     `json:"zahlungsart"`
	Bewirtungsart            string     `json:"bewirtungsart"`
	GeschaeftlicherAnlass    string     `json:"geschaeftlicherAnlass"`
	GeschaeftspartnerNamen   string     `json:"geschaeftspartnerNamen"`
	GeschaeftspartnerFirma   string     `json:"geschaeftspartnerFirma"`
	IstAuslaendischeRechnung bool       `json:"istAuslaendischeRechnung"`
	AuslaendischeWaehrung    string     `json:"auslaendischeWaehrung"`
	GenerateZugferd          bool       `json:"generateZugferd"`
	IstEigenbeleg            bool       `json:"istEigenbeleg"`
	Unternehmen              string     `json:"unternehmen"`
	UnternehmenAnschrift     string     `json:"unternehmenAnschrift"`
	UnternehmenPlz           string     `json:"unternehmenPlz"`
	UnternehmenOrt           string     `json:"unternehmenOrt"`
	Speisen                  string     `json:"speisen"`
	Getraenke                string     `json:"getraenke"`
}

// FieldSetter receives one form field at a time.
type FieldSetter interface {
	SetFieldValue(name string, value any)
}

// Validation is the result of ValidateFinancialFields.
type Validation struct {
	OK            bool     `json:"isValid"`
	MissingFields []string `json:"missingFields"`
}

// RequiredFinancialFields must hold a non-zero amount before submission.
var RequiredFinancialFields = []string{
	"gesamtbetrag",
	"gesamtbetragMwst",
	"gesamtbetragNetto",
	"kreditkartenBetrag",
}

// Accumulator merges extractions into a FormData. It is not safe for
// concurrent use; one instance belongs to one form session.
type Accumulator struct {
	data   FormData
	logger *slog.Logger
}

type Option func(*Accumulator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Accumulator) { a.logger = logger }
}

// NewAccumulator seeds the accumulator with the current form state.
func NewAccumulator(initial FormData, opts ...Option) *Accumulator {
	a := &Accumulator{
		data:   copyForm(initial),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type amounts struct {
	gross, vat, net, tip string
}

// normalize converts the extraction amounts to dot notation and derives the
// one missing value of gross, VAT and net.
func (a *Accumulator) normalize(e Extraction) amounts {
	var out amounts
	fields := []struct {
		name string
		in   string
		dst  *string
	}{
		{"gesamtbetrag", e.Gesamtbetrag, &out.gross},
		{"mwst", e.Mwst, &out.vat},
		{"netto", e.Netto, &out.net},
		{"trinkgeld", e.Trinkgeld, &out.tip},
	}
	for _, f := range fields {
		v, err := NormalizeAmount(f.in)
		if err != nil {
			a.logger.Warn("ignoring unparsable amount", "field", f.name, "value", f.in, "error", err)
			continue
		}
		*f.dst = v
	}

	g, okG := parseStored(out.gross)
	v, okV := parseStored(out.vat)
	n, okN := parseStored(out.net)
	switch {
	case okG && okV && !okN:
		out.net = formatAmount(g.Sub(v))
	case okG && okN && !okV:
		out.vat = formatAmount(g.Sub(n))
	case okV && okN && !okG:
		out.gross = formatAmount(v.Add(n))
	}
	return out
}

// Merge folds one extraction into the accumulated state.
func (a *Accumulator) Merge(e Extraction, kind SourceKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidClassification, kind)
	}
	a.logger.Debug("merging extraction", "kind", kind, "extraction", e)

	amt := a.normalize(e)

	if e.RestaurantName != "" {
		a.data.RestaurantName = e.RestaurantName
	}
	if e.RestaurantAnschrift != "" {
		a.data.RestaurantAnschrift = e.RestaurantAnschrift
	}
	if e.Datum != "" {
		d, err := ParseGermanDate(e.Datum)
		if err != nil {
			a.logger.Warn("ignoring unparsable date", "value", e.Datum, "error", err)
		} else {
			a.data.Datum = &d
		}
	}

	switch kind {
	case CardSlip:
		if amt.gross != "" {
			a.data.KreditkartenBetrag = amt.gross
			a.recomputeTip()
		}
	case Invoice:
		if amt.gross != "" {
			a.data.Gesamtbetrag = amt.gross
		}
		if amt.vat != "" {
			a.data.GesamtbetragMwst = amt.vat
		}
		if amt.net != "" {
			a.data.GesamtbetragNetto = amt.net
		}
		if amt.tip != "" {
			a.data.Trinkgeld = amt.tip
			a.data.TrinkgeldMwst = tipVAT(amt.tip)
		}
		if amt.gross != "" {
			a.recomputeTip()
		}
	}

	a.logger.Debug("accumulated values",
		"gesamtbetrag", a.data.Gesamtbetrag,
		"kreditkartenBetrag", a.data.KreditkartenBetrag,
		"trinkgeld", a.data.Trinkgeld,
		"trinkgeldMwst", a.data.TrinkgeldMwst,
	)
	return nil
}

// recomputeTip replaces the tip once gross and slip are both known. A slip
// that does not exceed the gross leaves no tip.
func (a *Accumulator) recomputeTip() {
	tip, vat, known := tipFor(a.data.Gesamtbetrag, a.data.KreditkartenBetrag)
	if !known {
		return
	}
	a.data.Trinkgeld = tip
	a.data.TrinkgeldMwst = vat
	a.logger.Debug("calculated tip", "trinkgeld", tip, "trinkgeldMwst", vat)
}

// Snapshot returns a copy of the accumulated state.
func (a *Accumulator) Snapshot() FormData {
	return copyForm(a.data)
}

// ValidateFinancialFields reports the required amounts that are blank or zero.
func (a *Accumulator) ValidateFinancialFields() Validation {
	values := map[string]string{
		"gesamtbetrag":       a.data.Gesamtbetrag,
		"gesamtbetragMwst":   a.data.GesamtbetragMwst,
		"gesamtbetragNetto":  a.data.GesamtbetragNetto,
		"kreditkartenBetrag": a.data.KreditkartenBetrag,
	}
	missing := []string{}
	for _, name := range RequiredFinancialFields {
		if d, ok := parseStored(values[name]); !ok || d.IsZero() {
			missing = append(missing, name)
		}
	}
	return Validation{OK: len(missing) == 0, MissingFields: missing}
}

// ApplyTo writes every non-empty accumulated field to form. Tip fields are
// written last, once each.
func (a *Accumulator) ApplyTo(form FieldSetter) {
	for _, f := range a.fields() {
		if f.empty {
			continue
		}
		form.SetFieldValue(f.name, f.value)
	}

	tip, vat, known := tipFor(a.data.Gesamtbetrag, a.data.KreditkartenBetrag)
	if !known {
		tip, vat = a.data.Trinkgeld, a.data.TrinkgeldMwst
	}
	if tip != "" {
		form.SetFieldValue("trinkgeld", tip)
	}
	if vat != "" {
		form.SetFieldValue("trinkgeldMwst", vat)
	}
}

type field struct {
	name  string
	value any
	empty bool
}

func str(name, v string) field {
	return field{name: name, value: v, empty: v == ""}
}

// fields lists the non-derived fields in form order.
func (a *Accumulator) fields() []field {
	d := a.data
	datum := field{name: "datum", empty: d.Datum == nil}
	if d.Datum != nil {
		datum.value = *d.Datum
	}
	return []field{
		datum,
		str("restaurantName", d.RestaurantName),
		str("restaurantAnschrift", d.RestaurantAnschrift),
		str("restaurantPlz", d.RestaurantPlz),
		str("restaurantOrt", d.RestaurantOrt),
		str("teilnehmer", d.Teilnehmer),
		str("anlass", d.Anlass),
		str("gesamtbetrag", d.Gesamtbetrag),
		str("gesamtbetragMwst", d.GesamtbetragMwst),
		str("gesamtbetragNetto", d.GesamtbetragNetto),
		str("kreditkartenBetrag", d.KreditkartenBetrag),
		str("zahlungsart", d.Zahlungsart),
		str("bewirtungsart", d.Bewirtungsart),
		str("geschaeftlicherAnlass", d.GeschaeftlicherAnlass),
		str("geschaeftspartnerNamen", d.GeschaeftspartnerNamen),
		str("geschaeftspartnerFirma", d.GeschaeftspartnerFirma),
		{name: "istAuslaendischeRechnung", value: d.IstAuslaendischeRechnung},
		str("auslaendischeWaehrung", d.AuslaendischeWaehrung),
		{name: "generateZugferd", value: d.GenerateZugferd},
		{name: "istEigenbeleg", value: d.IstEigenbeleg},
		str("unternehmen", d.Unternehmen),
		str("unternehmenAnschrift", d.UnternehmenAnschrift),
		str("unternehmenPlz", d.UnternehmenPlz),
		str("unternehmenOrt", d.UnternehmenOrt),
		str("speisen", d.Speisen),
		str("getraenke", d.Getraenke),
	}
}

func copyForm(f FormData) FormData {
	if f.Datum != nil {
		d := *f.Datum
		f.Datum = &d
	}
	return f
}
