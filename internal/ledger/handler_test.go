package ledger_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/produce-ledger/internal/balances"
	"github.com/odyssey-erp/produce-ledger/internal/inventory"
	"github.com/odyssey-erp/produce-ledger/internal/ledger"
	"github.com/odyssey-erp/produce-ledger/internal/ledger/memory"
	"github.com/odyssey-erp/produce-ledger/internal/platform/httpx"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := ledger.NewService(memory.New(), ledger.ServiceConfig{
		Clock: func() time.Time { return time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC) },
	})
	r := chi.NewRouter()
	r.Route("/api/v1", ledger.NewHandler(nil, svc).MountRoutes)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestHandlerTradingFlow(t *testing.T) {
	h := newTestRouter(t)

	var item ledger.Item
	require.Equal(t, http.StatusCreated, doJSON(t, h, http.MethodPost, "/api/v1/items", map[string]any{"name": "Mango"}, &item))
	require.Positive(t, item.ID)
	require.Equal(t, ledger.QuantityCrate, item.QuantityKind)

	var supplier, seller ledger.Party
	require.Equal(t, http.StatusCreated, doJSON(t, h, http.MethodPost, "/api/v1/suppliers", map[string]any{"name": "Ravi Farms"}, &supplier))
	require.Equal(t, http.StatusCreated, doJSON(t, h, http.MethodPost, "/api/v1/sellers", map[string]any{"name": "City Market"}, &seller))

	var res ledger.Result
	code := doJSON(t, h, http.MethodPost, "/api/v1/procurements", map[string]any{
		"date": "2024-03-09", "supplier_id": supplier.ID, "item_id": item.ID,
		"variety": "Alphonso", "quantity": "100", "rate": "10",
	}, &res)
	require.Equal(t, http.StatusCreated, code)
	require.Positive(t, res.EntryID)
	requireDecimal(t, "1000", res.Outstanding.PaymentDue)

	var stock struct {
		Stock []inventory.Availability `json:"stock"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/items/%d/stock", item.ID), nil, &stock))
	require.Len(t, stock.Stock, 1)
	require.Equal(t, "Alphonso", stock.Stock[0].Variety)
	requireDecimal(t, "100", stock.Stock[0].Stock)

	code = doJSON(t, h, http.MethodPost, "/api/v1/sales", map[string]any{
		"date": "2024-03-10", "seller_id": seller.ID, "item_id": item.ID,
		"lines":       []map[string]any{{"variety": "Alphonso", "quantity": "30", "sale_rate": "20"}},
		"amount_paid": "100",
	}, &res)
	require.Equal(t, http.StatusCreated, code)
	requireDecimal(t, "500", res.Outstanding.PaymentDue)
	requireDecimal(t, "30", res.Outstanding.QuantityDue)

	var statement ledger.SellerStatement
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet,
		fmt.Sprintf("/api/v1/sellers/%d/items/%d/ledger", seller.ID, item.ID), nil, &statement))
	require.Len(t, statement.Entries, 1)
	requireDecimal(t, "500", statement.Entries[0].RunningPaymentOutstanding)
	require.Len(t, statement.Entries[0].Lines, 1)

	var out balances.Outstanding
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet,
		fmt.Sprintf("/api/v1/outstanding/supplier/%d/%d", supplier.ID, item.ID), nil, &out))
	requireDecimal(t, "1000", out.PaymentDue)
	requireDecimal(t, "100", out.QuantityDue)

	var problem httpx.ProblemDetail
	code = doJSON(t, h, http.MethodPost, "/api/v1/sales", map[string]any{
		"date": "2024-03-10", "seller_id": seller.ID, "item_id": item.ID,
		"lines": []map[string]any{{"variety": "Alphonso", "quantity": "500", "sale_rate": "20"}},
	}, &problem)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, http.StatusUnprocessableEntity, problem.Status)

	code = doJSON(t, h, http.MethodPatch, fmt.Sprintf("/api/v1/procurements/%d", res.EntryID+1000), map[string]any{"rate": "12"}, &problem)
	require.Equal(t, http.StatusNotFound, code)
}

func TestHandlerRejectsMalformedRequests(t *testing.T) {
	h := newTestRouter(t)

	var problem httpx.ProblemDetail
	require.Equal(t, http.StatusBadRequest, doJSON(t, h, http.MethodPost, "/api/v1/procurements", map[string]any{}, &problem))
	require.Contains(t, problem.Fields, "date")
	require.Contains(t, problem.Fields, "supplier_id")
	require.Contains(t, problem.Fields, "variety")

	problem = httpx.ProblemDetail{}
	code := doJSON(t, h, http.MethodPost, "/api/v1/items", map[string]any{"name": "Mango", "colour": "yellow"}, &problem)
	require.Equal(t, http.StatusBadRequest, code)

	code = doJSON(t, h, http.MethodPost, "/api/v1/procurements", map[string]any{
		"date": "09/03/2024", "supplier_id": 1, "item_id": 1, "variety": "A", "quantity": "1", "rate": "1",
	}, &problem)
	require.Equal(t, http.StatusBadRequest, code)

	code = doJSON(t, h, http.MethodGet, "/api/v1/outstanding/buyer/1/1", nil, &problem)
	require.Equal(t, http.StatusBadRequest, code)

	code = doJSON(t, h, http.MethodDelete, "/api/v1/sales/abc", nil, &problem)
	require.Equal(t, http.StatusBadRequest, code)

	code = doJSON(t, h, http.MethodDelete, "/api/v1/sales/7?force=maybe", nil, &problem)
	require.Equal(t, http.StatusBadRequest, code)

	code = doJSON(t, h, http.MethodGet, "/api/v1/outstanding/seller/1/1", nil, &problem)
	require.Equal(t, http.StatusNotFound, code)
}
