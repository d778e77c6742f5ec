package receipt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TipVATRate is the VAT rate applied to tips.
var TipVATRate = decimal.RequireFromString("0.19")

const dateLayout = "02.01.2006"

var errEmptyAmount = errors.New("empty amount")

// ParseGermanDecimal parses an amount in German notation ("1.234,56", "51,90",
// "51"). When no comma is present a dot is read as the decimal separator.
func ParseGermanDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "€"), "€")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return decimal.Zero, errEmptyAmount
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// FormatGermanDecimal renders d with two decimals and a decimal comma.
func FormatGermanDecimal(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}

func ParseGermanFloat(s string) (float64, error) {
	d, err := ParseGermanDecimal(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

func FormatGermanFloat(f float64) string {
	return FormatGermanDecimal(decimal.NewFromFloat(f))
}

// NormalizeAmount converts a German amount to dot notation with two decimals.
// Blank input yields "".
func NormalizeAmount(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	d, err := ParseGermanDecimal(s)
	if err != nil {
		return "", err
	}
	return formatAmount(d), nil
}

// ParseGermanDate parses DD.MM.YYYY, tolerating single-digit day and month.
func ParseGermanDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{dateLayout, "2.1.2006"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected DD.MM.YYYY", s)
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// parseStored reads an accumulated amount. Blank and unparsable values count
// as absent.
func parseStored(s string) (decimal.Decimal, bool) {
	d, err := ParseGermanDecimal(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// tipFor derives the tip and its VAT from gross and slip. known reports
// whether both amounts are present; tip and vat are empty when the slip does
// not exceed the gross.
func tipFor(gross, slip string) (tip, vat string, known bool) {
	g, okG := parseStored(gross)
	k, okK := parseStored(slip)
	if !okG || !okK {
		return "", "", false
	}
	if !k.GreaterThan(g) {
		return "", "", true
	}
	t := k.Sub(g).Round(2)
	return formatAmount(t), formatAmount(t.Mul(TipVATRate)), true
}

func tipVAT(tip string) string {
	t, ok := parseStored(tip)
	if !ok {
		return ""
	}
	return formatAmount(t.Mul(TipVATRate))
}
