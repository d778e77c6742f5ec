package receipt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/bewirtungsbeleg/internal/domain"
)

var (
	invoice = Extraction{
		RestaurantName:      "Zur Linde",
		RestaurantAnschrift: "Hauptstr. 1, 10115 Berlin",
		Gesamtbetrag:        "51,90",
		Mwst:                "8,28",
		Netto:               "43,62",
		Datum:               "15.03.2024",
	}
	slip = Extraction{Gesamtbetrag: "61,90"}
)

type setCall struct {
	name  string
	value any
}

type recordingForm struct {
	calls []setCall
}

func (f *recordingForm) SetFieldValue(name string, value any) {
	f.calls = append(f.calls, setCall{name, value})
}

func (f *recordingForm) count(name string) int {
	n := 0
	for _, c := range f.calls {
		if c.name == name {
			n++
		}
	}
	return n
}

func financials(d FormData) [6]string {
	return [6]string{d.Gesamtbetrag, d.GesamtbetragMwst, d.GesamtbetragNetto, d.KreditkartenBetrag, d.Trinkgeld, d.TrinkgeldMwst}
}

func TestMergeIsOrderIndependent(t *testing.T) {
	slips := []Extraction{slip, {Gesamtbetrag: "70,00"}, {Gesamtbetrag: "40,00"}}
	for _, s := range slips {
		t.Run(s.Gesamtbetrag, func(t *testing.T) {
			a := NewAccumulator(FormData{})
			require.NoError(t, a.Merge(invoice, Invoice))
			require.NoError(t, a.Merge(s, CardSlip))

			b := NewAccumulator(FormData{})
			require.NoError(t, b.Merge(s, CardSlip))
			require.NoError(t, b.Merge(invoice, Invoice))

			assert.Equal(t, financials(a.Snapshot()), financials(b.Snapshot()))
		})
	}
}

func TestMergeComputesTip(t *testing.T) {
	a := NewAccumulator(FormData{})
	require.NoError(t, a.Merge(invoice, Invoice))
	require.NoError(t, a.Merge(slip, CardSlip))

	got := a.Snapshot()
	assert.Equal(t, "51.90", got.Gesamtbetrag)
	assert.Equal(t, "8.28", got.GesamtbetragMwst)
	assert.Equal(t, "43.62", got.GesamtbetragNetto)
	assert.Equal(t, "61.90", got.KreditkartenBetrag)
	assert.Equal(t, "10.00", got.Trinkgeld)
	assert.Equal(t, "1.90", got.TrinkgeldMwst)
}

func TestMergeLargerTip(t *testing.T) {
	a := NewAccumulator(FormData{})
	require.NoError(t, a.Merge(invoice, Invoice))
	require.NoError(t, a.Merge(Extraction{Gesamtbetrag: "70,00"}, CardSlip))

	got := a.Snapshot()
	assert.Equal(t, "18.10", got.Trinkgeld)
	assert.Equal(t, "3.44", got.TrinkgeldMwst)
}

func TestMergeNoTipWhenSlipNotGreater(t *testing.T) {
	a := NewAccumulator(FormData{})
	require.NoError(t, a.Merge(invoice, Invoice))
	require.NoError(t, a.Merge(Extraction{Gesamtbetrag: "51,90"}, CardSlip))

	got := a.Snapshot()
	assert.Equal(t, "51.90", got.KreditkartenBetrag)
	assert.Empty(t, got.Trinkgeld)
	assert.Empty(t, got.TrinkgeldMwst)
}

func TestMergeClearsTipWhenGrossOvertakesSlip(t *testing.T) {
	a := NewAccumulator(FormData{})
	require.NoError(t, a.Merge(invoice, Invoice))
	require.NoError(t, a.Merge(slip, CardSlip))
	require.Equal(t, "10.00", a.Snapshot().Trinkgeld)

	require.NoError(t, a.Merge(Extraction{Gesamtbetrag: "70,00"}, Invoice))

	got := a.Snapshot()
	assert.Equal(t, "70.00", got.Gesamtbetrag)
	assert.Equal(t, "61.90", got.KreditkartenBetrag)
	assert.Empty(t, got.Trinkgeld)
	assert.Empty(t, got.TrinkgeldMwst)

	form := &recordingForm{}
	a.ApplyTo(form)
	assert.Equal(t, 0, form.count("trinkgeld"))
	assert.Equal(t, 0, form.count("trinkgeldMwst"))
}

func TestMergeDropsInvoiceTipWhenSlipNotGreater(t *testing.T) {
	in := invoice
	in.Trinkgeld = "4,10"

	orders := map[string][]func(*Accumulator) error{
		"invoice first": {
			func(a *Accumulator) error { return a.Merge(in, Invoice) },
			func(a *Accumulator) error { return a.Merge(Extraction{Gesamtbetrag: "50,00"}, CardSlip) },
		},
		"slip first": {
			func(a *Accumulator) error { return a.Merge(Extraction{Gesamtbetrag: "50,00"}, CardSlip) },
			func(a *Accumulator) error { return a.Merge(in, Invoice) },
		},
	}

	for name, steps := range orders {
		t.Run(name, func(t *testing.T) {
			a := NewAccumulator(FormData{})
			for _, step := range steps {
				require.NoError(t, step(a))
			}
			got := a.Snapshot()
			assert.Empty(t, got.Trinkgeld)
			assert.Empty(t, got.TrinkgeldMwst)
		})
	}
}

func TestMergeDerivesMissingAmount(t *testing.T) {
	tests := []struct {
		name string
		in   Extraction
		want [3]string
	}{
		{"netto", Extraction{Gesamtbetrag: "100,00", Mwst: "15,97"}, [3]string{"100.00", "15.97", "84.03"}},
		{"mwst", Extraction{Gesamtbetrag: "119,00", Netto: "100,00"}, [3]string{"119.00", "19.00", "100.00"}},
		{"gesamtbetrag", Extraction{Mwst: "8,28", Netto: "43,62"}, [3]string{"51.90", "8.28", "43.62"}},
		{"unparsable gross", Extraction{Gesamtbetrag: "n/a", Mwst: "8,28", Netto: "43,62"}, [3]string{"51.90", "8.28", "43.62"}},
		{"only gross", Extraction{Gesamtbetrag: "20"}, [3]string{"20.00", "", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAccumulator(FormData{})
			require.NoError(t, a.Merge(tt.in, Invoice))
			got := a.Snapshot()
			assert.Equal(t, tt.want, [3]string{got.Gesamtbetrag, got.GesamtbetragMwst, got.GesamtbetragNetto})
		})
	}
}

func TestCardSlipNeverTouchesInvoiceAmounts(t *testing.T) {
	a := NewAccumulator(FormData{})
	require.NoError(t, a.Merge(invoice, Invoice))
	require.NoError(t, a.Merge(Extraction{Gesamtbetrag: "61,90", Mwst: "9,88", Netto: "52,02", RestaurantName: "Linde GmbH"}, CardSlip))

	got := a.Snapshot()
	assert.Equal(t, "51.90", got.Gesamtbetrag)
	assert.Equal(t, "8.28", got.GesamtbetragMwst)
	assert.Equal(t, "43.62", got.GesamtbetragNetto)
	assert.Equal(t, "Linde GmbH", got.RestaurantName)
}

func TestInvoiceTipSetsTipVAT(t *testing.T) {
	a := NewAccumulator(FormData{})
	in := invoice
	in.Trinkgeld = "5,00"
	require.NoError(t, a.Merge(in, Invoice))

	got := a.Snapshot()
	assert.Equal(t, "5.00", got.Trinkgeld)
	assert.Equal(t, "0.95", got.TrinkgeldMwst)
}

func TestMergeKeepsInitialValues(t *testing.T) {
	a := NewAccumulator(FormData{Teilnehmer: "Max, Erika", Anlass: "Projektabschluss", Zahlungsart: "firma"})
	require.NoError(t, a.Merge(invoice, Invoice))

	got := a.Snapshot()
	assert.Equal(t, "Max, Erika", got.Teilnehmer)
	assert.Equal(t, "Projektabschluss", got.Anlass)
	assert.Equal(t, "Zur Linde", got.RestaurantName)
	require.NotNil(t, got.Datum)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), *got.Datum)
}

func TestMergeBadDateKeepsPrevious(t *testing.T) {
	a := NewAccumulator(FormData{})
	require.NoError(t, a.Merge(invoice, Invoice))
	require.NoError(t, a.Merge(Extraction{Datum: "gestern"}, CardSlip))

	got := a.Snapshot()
	require.NotNil(t, got.Datum)
	assert.Equal(t, 15, got.Datum.Day())
}

func TestMergeRejectsUnknownKind(t *testing.T) {
	err := NewAccumulator(FormData{}).Merge(invoice, SourceKind("Quittung"))
	assert.ErrorIs(t, err, domain.ErrInvalidClassification)
}

func TestParseSourceKind(t *testing.T) {
	for in, want := range map[string]SourceKind{
		"Rechnung":          Invoice,
		"invoice":           Invoice,
		"Kreditkartenbeleg": CardSlip,
		" card_slip ":       CardSlip,
	} {
		got, err := ParseSourceKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseSourceKind("Quittung")
	assert.ErrorIs(t, err, domain.ErrInvalidClassification)
}

func TestSnapshotIsACopy(t *testing.T) {
	a := NewAccumulator(FormData{})
	require.NoError(t, a.Merge(invoice, Invoice))

	snap := a.Snapshot()
	*snap.Datum = time.Time{}
	snap.Gesamtbetrag = "0.00"

	again := a.Snapshot()
	assert.Equal(t, "51.90", again.Gesamtbetrag)
	assert.Equal(t, 2024, again.Datum.Year())
}

func TestValidateFinancialFields(t *testing.T) {
	a := NewAccumulator(FormData{})
	v := a.ValidateFinancialFields()
	assert.False(t, v.OK)
	assert.Equal(t, RequiredFinancialFields, v.MissingFields)

	require.NoError(t, a.Merge(invoice, Invoice))
	v = a.ValidateFinancialFields()
	assert.False(t, v.OK)
	assert.Equal(t, []string{"kreditkartenBetrag"}, v.MissingFields)

	require.NoError(t, a.Merge(slip, CardSlip))
	v = a.ValidateFinancialFields()
	assert.True(t, v.OK)
	assert.Empty(t, v.MissingFields)
}

func TestValidateTreatsZeroAsMissing(t *testing.T) {
	tests := []struct {
		name    string
		initial FormData
		want    []string
	}{
		{
			name: "dot zeros",
			initial: FormData{
				Gesamtbetrag:       "0",
				GesamtbetragMwst:   "0.00",
				GesamtbetragNetto:  "10.00",
				KreditkartenBetrag: "10.00",
			},
			want: []string{"gesamtbetrag", "gesamtbetragMwst"},
		},
		{
			name: "german and short zeros",
			initial: FormData{
				Gesamtbetrag:       "0,00",
				GesamtbetragMwst:   "0.0",
				GesamtbetragNetto:  "0",
				KreditkartenBetrag: "0.00",
			},
			want: RequiredFinancialFields,
		},
		{
			name: "blank and unparsable",
			initial: FormData{
				Gesamtbetrag:       "  ",
				GesamtbetragMwst:   "abc",
				GesamtbetragNetto:  "43,62",
				KreditkartenBetrag: "61.90",
			},
			want: []string{"gesamtbetrag", "gesamtbetragMwst"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewAccumulator(tt.initial).ValidateFinancialFields()
			assert.False(t, v.OK)
			assert.Equal(t, tt.want, v.MissingFields)
		})
	}
}

func TestApplyToWritesTipLastAndOnce(t *testing.T) {
	a := NewAccumulator(FormData{Anlass: "Kundengespräch"})
	require.NoError(t, a.Merge(invoice, Invoice))
	require.NoError(t, a.Merge(slip, CardSlip))

	form := &recordingForm{}
	a.ApplyTo(form)

	n := len(form.calls)
	require.GreaterOrEqual(t, n, 2)
	assert.Equal(t, setCall{"trinkgeld", "10.00"}, form.calls[n-2])
	assert.Equal(t, setCall{"trinkgeldMwst", "1.90"}, form.calls[n-1])
	assert.Equal(t, 1, form.count("trinkgeld"))
	assert.Equal(t, 1, form.count("trinkgeldMwst"))
	assert.Equal(t, 1, form.count("anlass"))
	assert.Equal(t, 0, form.count("teilnehmer"))
	assert.Equal(t, 1, form.count("generateZugferd"))
}

func TestApplyToIsRepeatable(t *testing.T) {
	a := NewAccumulator(FormData{})
	require.NoError(t, a.Merge(invoice, Invoice))
	require.NoError(t, a.Merge(slip, CardSlip))

	first, second := &recordingForm{}, &recordingForm{}
	a.ApplyTo(first)
	a.ApplyTo(second)
	assert.Equal(t, first.calls, second.calls)
}

func TestApplyToKeepsInvoiceTipWithoutSlip(t *testing.T) {
	in := invoice
	in.Trinkgeld = "4,10"
	a := NewAccumulator(FormData{})
	require.NoError(t, a.Merge(in, Invoice))

	form := &recordingForm{}
	a.ApplyTo(form)
	n := len(form.calls)
	assert.Equal(t, setCall{"trinkgeld", "4.10"}, form.calls[n-2])
	assert.Equal(t, setCall{"trinkgeldMwst", "0.78"}, form.calls[n-1])
}

func TestApplyToWithoutTip(t *testing.T) {
	a := NewAccumulator(FormData{})
	require.NoError(t, a.Merge(invoice, Invoice))

	form := &recordingForm{}
	a.ApplyTo(form)
	assert.Equal(t, 0, form.count("trinkgeld"))
	assert.Equal(t, 0, form.count("trinkgeldMwst"))
	assert.Equal(t, 1, form.count("gesamtbetrag"))
}
