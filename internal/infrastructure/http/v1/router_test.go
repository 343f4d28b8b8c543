package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/app/apptest"
	"stockledger/internal/core/id"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/idempotency"
)

type api struct {
	*apptest.Fixture
	router    *gin.Engine
	warehouse id.ID
}

func newAPI(t *testing.T, checks map[string]handlers.Checker) *api {
	t.Helper()
	f := apptest.New(t)
	return &api{
		Fixture: f,
		router: v1.NewRouter(v1.RouterConfig{
			Services:           f.Services,
			Idempotency:        idempotency.NewMemory(time.Hour),
			IdempotencyEnabled: true,
			Checks:             checks,
		}),
		warehouse: id.New(),
	}
}

func (a *api) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func (a *api) stockIn(m apptest.Material, unitID id.ID, qty, price any, post bool) map[string]any {
	return map[string]any{
		"transactionDate": apptest.Day(1),
		"warehouseId":     a.warehouse,
		"post":            post,
		"lines": []map[string]any{
			{"materialId": m.ID, "unitId": unitID, "quantity": qty, "unitPrice": price},
		},
	}
}

func (a *api) sale(m apptest.Material, qty string) map[string]any {
	return map[string]any{
		"transactionDate": apptest.Day(2),
		"warehouseId":     a.warehouse,
		"type":            "SALE",
		"lines": []map[string]any{
			{"materialId": m.ID, "unitId": m.BaseUnit, "quantity": qty},
		},
	}
}

func TestHealth(t *testing.T) {
	a := newAPI(t, map[string]handlers.Checker{
		"storage": func(context.Context) error { return nil },
		"redis":   func(context.Context) error { return errors.New("connection refused") },
	})

	w := a.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["storage"])
	assert.Contains(t, checks["redis"], "connection refused")
}

func TestStockIn_CreateAndPostThenQueryLedger(t *testing.T) {
	a := newAPI(t, nil)
	m := a.Material("12")

	// Quantities travel as strings or numbers.
	w := a.do(t, http.MethodPost, "/api/v1/stock-in", a.stockIn(m, m.Box, "2", 24, true))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	doc := decode(t, w)
	assert.Equal(t, true, doc["locked"])
	assert.Equal(t, "EXTERNAL", doc["type"])
	line := doc["lines"].([]any)[0].(map[string]any)
	batchID := line["ledgerEntryId"].(string)

	w = a.do(t, http.MethodGet, "/api/v1/ledger/balance?warehouseId="+a.warehouse.String()+"&materialId="+m.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "24", decode(t, w)["sumRemaining"])

	w = a.do(t, http.MethodGet, "/api/v1/ledger/batches?warehouseId="+a.warehouse.String()+"&materialId="+m.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode(t, w)
	assert.EqualValues(t, 1, list["totalCount"])

	w = a.do(t, http.MethodGet, "/api/v1/ledger/batches/"+batchID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	batch := decode(t, w)
	assert.Equal(t, "2", batch["unitPrice"])
	assert.Empty(t, batch["mappings"])
}

func TestStockIn_DraftLifecycle(t *testing.T) {
	a := newAPI(t, nil)
	m := a.Material("12")

	w := a.do(t, http.MethodPost, "/api/v1/stock-in", a.stockIn(m, m.BaseUnit, "5", "1", false))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	docID := decode(t, w)["id"].(string)

	w = a.do(t, http.MethodPut, "/api/v1/stock-in/"+docID, a.stockIn(m, m.BaseUnit, "7", "1.5", false))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "10.5", decode(t, w)["totalAmount"])

	w = a.do(t, http.MethodGet, "/api/v1/stock-in/"+docID+"/preview", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodDelete, "/api/v1/stock-in/"+docID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/stock-in/"+docID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w)["code"])
}

func TestStockIn_RejectsBadInput(t *testing.T) {
	a := newAPI(t, nil)
	m := a.Material("12")

	tests := []struct {
		name string
		body any
	}{
		{"zero quantity", a.stockIn(m, m.BaseUnit, "0", "1", false)},
		{"zero price", a.stockIn(m, m.BaseUnit, "1", "0", false)},
		{"not a number", a.stockIn(m, m.BaseUnit, "abc", "1", false)},
		{"no lines", map[string]any{"transactionDate": apptest.Day(1), "warehouseId": a.warehouse, "lines": []any{}}},
		{"bad json", `{"lines": [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, http.MethodPost, "/api/v1/stock-in", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	w := a.do(t, http.MethodGet, "/api/v1/stock-in/not-an-id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStockOut_InsufficientStock(t *testing.T) {
	a := newAPI(t, nil)
	m := a.Material("12")
	a.Receive(t, a.warehouse, m, apptest.Day(1), "3", "1")

	body := a.sale(m, "5")
	body["post"] = true
	w := a.do(t, http.MethodPost, "/api/v1/stock-out", body)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "INSUFFICIENT_STOCK", resp["code"])
	details := resp["details"].(map[string]any)
	assert.Equal(t, "3", details["available"])

	apptest.DecEqual(t, "3", a.Remaining(t, m.Pair(a.warehouse)))
}

func TestStockOut_UnknownType(t *testing.T) {
	a := newAPI(t, nil)
	m := a.Material("12")
	body := a.sale(m, "1")
	body["type"] = "GIFT"

	w := a.do(t, http.MethodPost, "/api/v1/stock-out", body)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestPost_IdempotencyKeyReplays(t *testing.T) {
	a := newAPI(t, nil)
	m := a.Material("12")
	a.Receive(t, a.warehouse, m, apptest.Day(1), "10", "2")

	w := a.do(t, http.MethodPost, "/api/v1/stock-out", a.sale(m, "4"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	docID := decode(t, w)["id"].(string)

	first := a.do(t, http.MethodPost, "/api/v1/stock-out/"+docID+"/post", nil, "Idempotency-Key", "post-1")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	second := a.do(t, http.MethodPost, "/api/v1/stock-out/"+docID+"/post", nil, "Idempotency-Key", "post-1")
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	apptest.DecEqual(t, "6", a.Remaining(t, m.Pair(a.warehouse)))

	// Without the key the second post is refused.
	third := a.do(t, http.MethodPost, "/api/v1/stock-out/"+docID+"/post", nil)
	assert.Equal(t, http.StatusConflict, third.Code)
	assert.Equal(t, "TRANSACTION_LOCKED", decode(t, third)["code"])

	// The same key on another request is a mismatch.
	other := a.do(t, http.MethodPost, "/api/v1/stock-out", a.sale(m, "1"), "Idempotency-Key", "post-1")
	assert.Equal(t, http.StatusConflict, other.Code)
	assert.Equal(t, "IDEMPOTENCY_CONFLICT", decode(t, other)["code"])
}

func TestIdempotency_ClientErrorIsReplayed(t *testing.T) {
	a := newAPI(t, nil)
	m := a.Material("12")

	body := a.sale(m, "4")
	body["post"] = true
	first := a.do(t, http.MethodPost, "/api/v1/stock-out", body, "X-Idempotency-Key", "sale-1")
	require.Equal(t, http.StatusUnprocessableEntity, first.Code)

	// Receiving stock does not change the stored outcome for the key.
	a.Receive(t, a.warehouse, m, apptest.Day(1), "10", "2")
	again := a.do(t, http.MethodPost, "/api/v1/stock-out", body, "X-Idempotency-Key", "sale-1")
	assert.Equal(t, http.StatusUnprocessableEntity, again.Code)
	apptest.DecEqual(t, "10", a.Remaining(t, m.Pair(a.warehouse)))
}

func TestAdjustment_Routes(t *testing.T) {
	a := newAPI(t, nil)
	m := a.Material("12")
	batch := a.Receive(t, a.warehouse, m, apptest.Day(1), "10", "2")

	w := a.do(t, http.MethodPost, "/api/v1/adjustments", map[string]any{
		"transactionDate": apptest.Day(3),
		"warehouseId":     a.warehouse,
		"adjustmentType":  "DECREASE",
		"reason":          "damaged",
		"lines": []map[string]any{
			{"materialId": m.ID, "unitId": m.BaseUnit, "quantity": "3", "inventoryLedgerId": batch.ID},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	docID := decode(t, w)["id"].(string)

	w = a.do(t, http.MethodGet, "/api/v1/adjustments/"+docID+"/preview", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["sufficient"])

	// Adjustments are not edited in place.
	w = a.do(t, http.MethodPut, "/api/v1/adjustments/"+docID, map[string]any{})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/adjustments/"+docID+"/post", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "-6", decode(t, w)["totalAmount"])

	w = a.do(t, http.MethodGet, "/api/v1/ledger/batches/"+batch.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "7", resp["remainingQuantity"])
	assert.Len(t, resp["mappings"], 1)
}

func TestInventoryCount_Flow(t *testing.T) {
	a := newAPI(t, nil)
	m := a.Material("12")
	batch := a.Receive(t, a.warehouse, m, apptest.Day(1), "8", "1.5")

	w := a.do(t, http.MethodGet, "/api/v1/inventory-counts/batches?warehouseId="+a.warehouse.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sheet := decode(t, w)["items"].([]any)
	require.Len(t, sheet, 1)
	assert.Equal(t, batch.ID.String(), sheet[0].(map[string]any)["inventoryLedgerId"])

	w = a.do(t, http.MethodPost, "/api/v1/inventory-counts", map[string]any{
		"countDate":   apptest.Day(5),
		"warehouseId": a.warehouse,
		"lines": []map[string]any{
			{"inventoryLedgerId": batch.ID, "materialId": m.ID, "unitId": m.BaseUnit, "actualQuantity": "5"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	countID := decode(t, w)["id"].(string)

	w = a.do(t, http.MethodPost, "/api/v1/inventory-counts/"+countID+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "IN_PROGRESS", decode(t, w)["status"])

	w = a.do(t, http.MethodPost, "/api/v1/inventory-counts/"+countID+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	done := decode(t, w)
	assert.Equal(t, "COMPLETED", done["status"])
	assert.NotEmpty(t, done["adjustmentTransactionId"])

	apptest.DecEqual(t, "5", a.Remaining(t, m.Pair(a.warehouse)))

	w = a.do(t, http.MethodPost, "/api/v1/inventory-counts/"+countID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, "TRANSACTION_LOCKED", decode(t, w)["code"])
}

func TestInventoryCount_EditAndDelete(t *testing.T) {
	a := newAPI(t, nil)
	m := a.Material("12")
	batch := a.Receive(t, a.warehouse, m, apptest.Day(1), "8", "1.5")
	body := func(actual string) map[string]any {
		return map[string]any{
			"countDate":   apptest.Day(5),
			"warehouseId": a.warehouse,
			"lines": []map[string]any{
				{"inventoryLedgerId": batch.ID, "materialId": m.ID, "unitId": m.BaseUnit, "actualQuantity": actual},
			},
		}
	}

	w := a.do(t, http.MethodPost, "/api/v1/inventory-counts", body("5"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	countID := decode(t, w)["id"].(string)

	w = a.do(t, http.MethodPut, "/api/v1/inventory-counts/"+countID, body("6"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	line := decode(t, w)["lines"].([]any)[0].(map[string]any)
	assert.Equal(t, "6", line["actualQuantity"])

	w = a.do(t, http.MethodPost, "/api/v1/inventory-counts/"+countID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodPut, "/api/v1/inventory-counts/"+countID, body("7"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, "INVALID_STATUS", decode(t, w)["code"])

	w = a.do(t, http.MethodPost, "/api/v1/inventory-counts", body("5"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	draftID := decode(t, w)["id"].(string)

	w = a.do(t, http.MethodDelete, "/api/v1/inventory-counts/"+draftID, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	w = a.do(t, http.MethodGet, "/api/v1/inventory-counts/"+draftID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	apptest.DecEqual(t, "8", a.Remaining(t, m.Pair(a.warehouse)))
}

func TestLedgerPreview_ReportsShortage(t *testing.T) {
	a := newAPI(t, nil)
	m := a.Material("12")
	a.Receive(t, a.warehouse, m, apptest.Day(1), "10", "1")

	w := a.do(t, http.MethodPost, "/api/v1/ledger/preview", map[string]any{
		"warehouseId": a.warehouse,
		"items": []map[string]any{
			{"materialId": m.ID, "unitId": m.Box, "quantity": 1},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	preview := decode(t, w)
	assert.Equal(t, false, preview["sufficient"])
	line := preview["lines"].([]any)[0].(map[string]any)
	assert.Equal(t, "2", line["shortage"])
	assert.Empty(t, line["batches"])

	apptest.DecEqual(t, "10", a.Remaining(t, m.Pair(a.warehouse)))
}

func TestResponses_CarryTraceHeaders(t *testing.T) {
	a := newAPI(t, nil)
	w := a.do(t, http.MethodGet, "/health/live", nil, "X-Request-ID", "req-42")
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}
