package handlers

import (
	"context"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-nozomu/gacha-app/internal/models"
	"github.com/noah-nozomu/gacha-app/internal/services"
	"github.com/noah-nozomu/gacha-app/internal/store"
)

// testTemplates are stripped-down stand-ins for the embedded pages so
// the tests assert on flow, not markup.
const testTemplates = `
{{define "layout.html"}}[{{.title}}] {{.PageContent}}{{end}}
{{define "start.html"}}start{{if .SoldOut}} soldout{{end}}{{if .Error}} error={{.Error}}{{end}}{{end}}
{{define "rolling.html"}}rolling delay={{.DelayMS}}{{end}}
{{define "result.html"}}result prize={{.Prize.Name}}{{if .CanRegister}} form{{end}}{{if .Registered}} registered{{end}}{{if .Error}} error={{.Error}}{{end}}{{end}}
{{define "admin.html"}}admin catalog={{len .Catalog}} ledger={{len .Ledger}} pending={{len .Unredeemed}}{{if .Notice}} notice={{.Notice}}{{end}}{{if .Error}} error={{.Error}}{{end}}{{end}}
`

type kioskFixture struct {
	router  *gin.Engine
	gacha   *services.GachaService
	cookies []*http.Cookie
	t       *testing.T
}

func newKioskFixture(t *testing.T, entries ...models.PrizeEntry) *kioskFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := store.NewMemory()
	m.Seed(store.CatalogTable, models.CatalogTable(entries))

	tmpl, err := template.New("test").Parse(testTemplates)
	require.NoError(t, err)

	gacha := services.NewGachaService(m, 3)
	sessions := services.NewSessionService(time.Hour)
	handler := NewHTTPHandler(gacha, sessions, tmpl, 3, 10*time.Millisecond)

	router := gin.New()
	router.Use(handler.SessionMiddleware())
	handler.RegisterRoutes(router)

	return &kioskFixture{router: router, gacha: gacha, t: t}
}

func (f *kioskFixture) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	f.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range f.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if cookies := w.Result().Cookies(); len(cookies) > 0 {
		f.cookies = cookies
	}
	return w
}

func TestKioskFlow_DrawRevealRegister(t *testing.T) {
	f := newKioskFixture(t, models.PrizeEntry{Name: "大当たり", Rank: 1, Weight: 1, Stock: 1, Message: "おめでとう"})

	w := f.do(http.MethodGet, "/", nil)
	assert.Contains(t, w.Body.String(), "start")
	assert.NotContains(t, w.Body.String(), "soldout")

	w = f.do(http.MethodPost, "/draw", url.Values{})
	assert.Contains(t, w.Body.String(), "rolling")

	// Stock is committed before the rolling screen renders.
	catalog, err := f.gacha.Catalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, catalog[0].Stock)

	w = f.do(http.MethodGet, "/reveal", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)

	w = f.do(http.MethodGet, "/", nil)
	assert.Contains(t, w.Body.String(), "result prize=大当たり")
	assert.Contains(t, w.Body.String(), "form")

	w = f.do(http.MethodPost, "/register", url.Values{"winnerName": {"Aya"}})
	assert.Contains(t, w.Body.String(), "registered")
	assert.NotContains(t, w.Body.String(), "form")

	ledger, err := f.gacha.Ledger(context.Background())
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, "Aya", ledger[0].WinnerName)
	assert.Equal(t, "大当たり", ledger[0].PrizeName)

	// Back to start; the next draw finds nothing left.
	w = f.do(http.MethodPost, "/restart", url.Values{})
	assert.Equal(t, http.StatusSeeOther, w.Code)

	w = f.do(http.MethodPost, "/draw", url.Values{})
	assert.Contains(t, w.Body.String(), "start")
	assert.Contains(t, w.Body.String(), "終了")
}

func TestKioskFlow_BlankNameReprompts(t *testing.T) {
	f := newKioskFixture(t, models.PrizeEntry{Name: "当たり", Rank: 2, Weight: 1, Stock: 5})

	f.do(http.MethodPost, "/draw", url.Values{})
	f.do(http.MethodGet, "/reveal", nil)

	w := f.do(http.MethodPost, "/register", url.Values{"winnerName": {"   "}})
	assert.Contains(t, w.Body.String(), "error=")
	assert.Contains(t, w.Body.String(), "form", "the form must be offered again")

	ledger, err := f.gacha.Ledger(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ledger)
}

func TestKioskFlow_LowRankSkipsRegistration(t *testing.T) {
	f := newKioskFixture(t, models.PrizeEntry{Name: "参加賞", Rank: 4, Weight: 1, Stock: 5})

	f.do(http.MethodPost, "/draw", url.Values{})
	f.do(http.MethodGet, "/reveal", nil)

	w := f.do(http.MethodGet, "/", nil)
	assert.Contains(t, w.Body.String(), "result prize=参加賞")
	assert.NotContains(t, w.Body.String(), "form")
}

func TestAdminFlow_RedeemAndReset(t *testing.T) {
	f := newKioskFixture(t,
		models.PrizeEntry{Name: "大当たり", Rank: 1, Weight: 1, Stock: 3},
	)

	record, err := f.gacha.Register(context.Background(), "Aya", "大当たり", 1)
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/admin", nil)
	assert.Contains(t, w.Body.String(), "catalog=1")
	assert.Contains(t, w.Body.String(), "pending=1")

	w = f.do(http.MethodPost, "/admin/redeem", url.Values{"recordID": {record.ID}})
	assert.Contains(t, w.Body.String(), "notice=完了！")
	assert.Contains(t, w.Body.String(), "pending=0")

	// The stale screen posts the same id again.
	w = f.do(http.MethodPost, "/admin/redeem", url.Values{"recordID": {record.ID}})
	assert.Contains(t, w.Body.String(), "error=")

	w = f.do(http.MethodPost, "/admin/reset-stock", url.Values{})
	assert.Contains(t, w.Body.String(), "notice=")
	catalog, err := f.gacha.Catalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, catalog[0].Stock)
}
