package receipts

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ft "github.com/tendant/bewirtungsbeleg/internal/http/features/featuretest"
	"github.com/tendant/bewirtungsbeleg/internal/httputil"
)

func newRouter() http.Handler {
	r := chi.NewRouter()
	NewHandler(ft.Logger()).RegisterRoutes(r, func(next http.Handler) http.Handler { return next })
	return r
}

func TestReconcile(t *testing.T) {
	body := `{
		"initial": {"anlass": "Kundentermin", "zahlungsart": "firma"},
		"extractions": [
			{"classification": "Kreditkartenbeleg", "data": {"gesamtbetrag": "61,90"}},
			{"classification": "Rechnung", "data": {"restaurantName": "Zur Post", "gesamtbetrag": "51,90", "mwst": "8,28", "datum": "14.03.2025"}}
		]
	}`

	rec := ft.Do(newRouter(), http.MethodPost, "/api/receipts/reconcile", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got ReconcileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))

	assert.Equal(t, "Kundentermin", got.Values.Anlass)
	assert.Equal(t, "firma", got.Values.Zahlungsart)
	assert.Equal(t, "Zur Post", got.Values.RestaurantName)
	assert.Equal(t, "51.90", got.Values.Gesamtbetrag)
	assert.Equal(t, "43.62", got.Values.GesamtbetragNetto)
	assert.Equal(t, "61.90", got.Values.KreditkartenBetrag)
	assert.Equal(t, "10.00", got.Values.Trinkgeld)
	assert.Equal(t, "1.90", got.Values.TrinkgeldMwst)
	require.NotNil(t, got.Values.Datum)
	assert.Equal(t, "2025-03-14", got.Values.Datum.Format("2006-01-02"))
	assert.True(t, got.Validation.OK)
	assert.Empty(t, got.Validation.MissingFields)
}

func TestReconcile_ReportsMissingFields(t *testing.T) {
	body := `{"extractions": [{"classification": "invoice", "data": {"gesamtbetrag": "20,00"}}]}`

	rec := ft.Do(newRouter(), http.MethodPost, "/api/receipts/reconcile", body)

	require.Equal(t, http.StatusOK, rec.Code)
	var got ReconcileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Validation.OK)
	assert.ElementsMatch(t, []string{"gesamtbetragMwst", "gesamtbetragNetto", "kreditkartenBetrag"}, got.Validation.MissingFields)
}

func TestReconcile_Errors(t *testing.T) {
	many := make([]string, MaxExtractions+1)
	for i := range many {
		many[i] = `{"classification": "Rechnung", "data": {}}`
	}

	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{"invalid json", `{"extractions": [`, httputil.MsgInvalidRequest},
		{"no extractions", `{"extractions": []}`, "Mindestens ein Beleg ist erforderlich"},
		{"unknown classification", `{"extractions": [{"classification": "Quittung", "data": {}}]}`, msgUnknownClassification},
		{"too many", fmt.Sprintf(`{"extractions": [%s]}`, strings.Join(many, ",")), msgTooManyExtractions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ft.Do(newRouter(), http.MethodPost, "/api/receipts/reconcile", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.expected, ft.Body(rec)["error"])
		})
	}
}

func TestReconcileChecksAllClassificationsFirst(t *testing.T) {
	req := ReconcileRequest{Extractions: []ExtractionInput{
		{Classification: "Rechnung"},
		{Classification: "Bon"},
	}}

	_, _, err := Reconcile(req, ft.Logger())

	assert.Error(t, err)
}
