package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tirepos/internal/config"
	"tirepos/internal/domain"
	"tirepos/internal/http/handlers"
	"tirepos/internal/http/server"
	applog "tirepos/internal/log"
	"tirepos/internal/obs"
	"tirepos/internal/pricing"
	"tirepos/internal/repos"
)

type testApp struct {
	app   *fiber.App
	db    *sqlx.DB
	reg   *prometheus.Registry
	prods *repos.ProductRepo
	inv   *repos.InventoryRepo
	tires domain.Category
}

func newApp(t *testing.T, tune ...func(*server.Options)) *testApp {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{
		DefaultTaxRate: decimal.RequireFromString(pricing.DefaultGlobalTaxRate),
		TireFee:        pricing.TireFee(),
	}
	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics("tirepos", reg)
	opts := server.Options{
		Deps:      handlers.NewDeps(db, cfg, metrics, zerolog.Nop()),
		Gatherer:  reg,
		AccessLog: io.Discard,
	}
	for _, fn := range tune {
		fn(&opts)
	}

	ta := &testApp{
		app:   server.New(opts),
		db:    db,
		reg:   reg,
		prods: repos.NewProductRepo(db),
		inv:   repos.NewInventoryRepo(db),
	}
	ta.tires, err = repos.NewCategoryRepo(db).Create(context.Background(), "Tires", "")
	require.NoError(t, err)
	return ta
}

// tire adds a new-condition tire priced at 100.00.
func (a *testApp) tire(t *testing.T, sku string, qty int) domain.Product {
	t.Helper()
	catID := a.tires.ID
	p, err := a.prods.Create(context.Background(), domain.Product{
		SKU:          sku,
		Name:         "Tire " + sku,
		CategoryID:   &catID,
		Condition:    domain.ConditionNew,
		Quantity:     qty,
		SellingPrice: decimal.RequireFromString("100.00"),
		IsActive:     true,
	})
	require.NoError(t, err)
	return p
}

func (a *testApp) qty(t *testing.T, id int64) int {
	t.Helper()
	q, err := a.inv.Qty(context.Background(), id)
	require.NoError(t, err)
	return q
}

func (a *testApp) do(t *testing.T, method, path string, body any, headers ...string) *http.Response {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func decodeList(t *testing.T, resp *http.Response) []map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func errorCode(t *testing.T, resp *http.Response) (string, map[string]any) {
	t.Helper()
	body := decode(t, resp)
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "error envelope missing: %v", body)
	code, _ := e["code"].(string)
	return code, e
}

type logEntry struct {
	Level  string         `json:"level"`
	Kind   string         `json:"kind"`
	Action string         `json:"action"`
	Fields map[string]any `json:"fields"`
}

type lockedBuf struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuf) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func captureLogs(t *testing.T, fn func()) []logEntry {
	t.Helper()
	buf := &lockedBuf{}
	prev := applog.Logger()
	applog.SetLogger(zerolog.New(buf))
	defer applog.SetLogger(prev)

	fn()

	buf.mu.Lock()
	defer buf.mu.Unlock()
	var entries []logEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.b.String()), "\n") {
		var e logEntry
		if line != "" && json.Unmarshal([]byte(line), &e) == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

func findAction(entries []logEntry, action string) (logEntry, bool) {
	for _, e := range entries {
		if e.Action == action {
			return e, true
		}
	}
	return logEntry{}, false
}
