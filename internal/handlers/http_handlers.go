package handlers

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/google/uuid"

	"github.com/noah-nozomu/gacha-app/internal/models"
	"github.com/noah-nozomu/gacha-app/internal/services"
)

const sessionCookie = "gacha_session"

// HTTPHandler holds the dependencies for the HTTP handlers.
type HTTPHandler struct {
	gacha       *services.GachaService
	sessions    *services.SessionService
	templates   *template.Template
	maxRank     int
	revealDelay time.Duration
}

// NewHTTPHandler creates a new HTTPHandler. maxRank is the worst prize
// rank that still qualifies for winner registration.
func NewHTTPHandler(gacha *services.GachaService, sessions *services.SessionService, templates *template.Template, maxRank int, revealDelay time.Duration) *HTTPHandler {
	return &HTTPHandler{
		gacha:       gacha,
		sessions:    sessions,
		templates:   templates,
		maxRank:     maxRank,
		revealDelay: revealDelay,
	}
}

// SessionMiddleware assigns every visitor a session cookie so the
// screen state machine can follow them across requests.
func (h *HTTPHandler) SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(sessionCookie)
		if err != nil || id == "" {
			id = uuid.NewString()
			c.SetCookie(sessionCookie, id, 0, "/", "", false, true)
		}
		c.Set(sessionCookie, id)
		c.Next()
	}
}

func (h *HTTPHandler) sessionID(c *gin.Context) string {
	return c.GetString(sessionCookie)
}

// renderPage is a helper to perform a two-step template rendering.
// It first executes the content template into a buffer, then executes
// the main layout template, passing the rendered content as a variable.
func (h *HTTPHandler) renderPage(c *gin.Context, pageData gin.H, contentTmpl string) {
	buf := new(bytes.Buffer)
	err := h.templates.ExecuteTemplate(buf, contentTmpl, pageData)
	if err != nil {
		logger.Errorf("Error executing content template %s: %v", contentTmpl, err)
		c.String(http.StatusInternalServerError, "Template rendering error")
		return
	}

	pageData["PageContent"] = template.HTML(buf.String())

	err = h.templates.ExecuteTemplate(c.Writer, "layout.html", pageData)
	if err != nil {
		logger.Errorf("Error executing layout template: %v", err)
		c.String(http.StatusInternalServerError, "Template rendering error")
	}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.ShowKiosk)
	router.POST("/draw", h.PerformDraw)
	router.GET("/reveal", h.RevealResult)
	router.POST("/register", h.RegisterWinner)
	router.POST("/restart", h.Restart)

	router.GET("/admin", h.ShowAdmin)
	router.POST("/admin/catalog", h.SaveCatalog)
	router.POST("/admin/reset-stock", h.ResetStock)
	router.POST("/admin/clear-ledger", h.ClearLedger)
	router.POST("/admin/redeem", h.Redeem)
}

// ShowKiosk renders whichever screen the visitor's session is on.
func (h *HTTPHandler) ShowKiosk(c *gin.Context) {
	session := h.sessions.Get(h.sessionID(c))

	switch session.State {
	case services.ScreenRolling:
		if session.HasResult {
			h.showRolling(c)
			return
		}
		// A reload mid-roll with nothing drawn goes back to start.
		h.sessions.Restart(h.sessionID(c))
	case services.ScreenResult:
		if session.HasResult {
			h.showResult(c, session, "")
			return
		}
		h.sessions.Restart(h.sessionID(c))
	}
	h.showStart(c, "")
}

func (h *HTTPHandler) showStart(c *gin.Context, errMsg string) {
	soldOut, err := h.gacha.SoldOut(c.Request.Context())
	if err != nil {
		logger.Errorf("Error reading catalog: %v", err)
		errMsg = "読み込みエラーが発生しました。しばらくしてからお試しください。"
	}
	h.renderPage(c, gin.H{
		"title":   "スペシャルガチャ",
		"SoldOut": soldOut,
		"Error":   errMsg,
	}, "start.html")
}

func (h *HTTPHandler) showRolling(c *gin.Context) {
	h.renderPage(c, gin.H{
		"title":   "抽選中...",
		"DelayMS": h.revealDelay.Milliseconds(),
	}, "rolling.html")
}

func (h *HTTPHandler) showResult(c *gin.Context, session *services.VisitSession, errMsg string) {
	prize := session.Result
	title := "ガチャ結果"
	switch prize.Rank {
	case 1:
		title = "🎉 大当たり！ 🎉"
	case 2:
		title = "✨ 当たり！ ✨"
	}
	h.renderPage(c, gin.H{
		"title":       "ガチャ結果",
		"ResultTitle": title,
		"Prize":       prize,
		"CanRegister": prize.Rank <= h.maxRank && !session.Registered,
		"Registered":  session.Registered,
		"Error":       errMsg,
	}, "result.html")
}

// PerformDraw runs one draw and moves the session to the rolling
// screen. The stock decrement is committed before the rolling screen is
// ever shown; a failed write never advances the state machine.
func (h *HTTPHandler) PerformDraw(c *gin.Context) {
	sessionID := h.sessionID(c)
	h.sessions.BeginRoll(sessionID)

	prize, err := h.gacha.Draw(c.Request.Context())
	if err != nil {
		h.sessions.Restart(sessionID)
		switch {
		case errors.Is(err, services.ErrOutOfStock):
			h.showStart(c, "大好評につき、すべての景品が終了しました！")
		case errors.Is(err, services.ErrContention):
			h.showStart(c, err.Error())
		default:
			logger.Errorf("Draw failed: %v", err)
			h.showStart(c, "在庫更新エラーが発生しました。もう一度お試しください。")
		}
		return
	}

	h.sessions.HoldResult(sessionID, prize)
	h.showRolling(c)
}

// RevealResult moves a rolling session to the result screen after the
// presentation delay has elapsed client-side.
func (h *HTTPHandler) RevealResult(c *gin.Context) {
	h.sessions.Reveal(h.sessionID(c))
	c.Redirect(http.StatusSeeOther, "/")
}

// RegisterWinner records a name against the current result.
func (h *HTTPHandler) RegisterWinner(c *gin.Context) {
	sessionID := h.sessionID(c)
	session := h.sessions.Get(sessionID)
	if session.State != services.ScreenResult || !session.HasResult {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	if session.Result.Rank > h.maxRank || session.Registered {
		h.showResult(c, session, "")
		return
	}

	name := c.PostForm("winnerName")
	_, err := h.gacha.Register(c.Request.Context(), name, session.Result.Name, session.Result.Rank)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidName):
			h.showResult(c, session, services.ErrInvalidName.Error())
		case errors.Is(err, services.ErrContention):
			h.showResult(c, session, err.Error())
		default:
			logger.Errorf("Register failed: %v", err)
			h.showResult(c, session, "登録エラーが発生しました。もう一度お試しください。")
		}
		return
	}

	h.sessions.MarkRegistered(sessionID)
	h.showResult(c, h.sessions.Get(sessionID), "")
}

// Restart returns the visitor to the start screen.
func (h *HTTPHandler) Restart(c *gin.Context) {
	h.sessions.Restart(h.sessionID(c))
	c.Redirect(http.StatusSeeOther, "/")
}

// ShowAdmin renders the administrator panel: catalog editor, ledger
// listing and the redemption picker.
func (h *HTTPHandler) ShowAdmin(c *gin.Context) {
	h.showAdmin(c, "", "")
}

func (h *HTTPHandler) showAdmin(c *gin.Context, notice, errMsg string) {
	ctx := c.Request.Context()
	catalog, err := h.gacha.Catalog(ctx)
	if err != nil {
		logger.Errorf("Error reading catalog: %v", err)
		errMsg = "カタログの読み込みに失敗しました"
	}
	ledger, err := h.gacha.Ledger(ctx)
	if err != nil {
		logger.Errorf("Error reading ledger: %v", err)
		errMsg = "当選者リストの読み込みに失敗しました"
	}
	pending := make([]models.WinnerRecord, 0, len(ledger))
	for _, r := range ledger {
		if !r.Redeemed {
			pending = append(pending, r)
		}
	}
	h.renderPage(c, gin.H{
		"title":      "管理者設定",
		"Catalog":    catalog,
		"Ledger":     ledger,
		"Unredeemed": pending,
		"Notice":     notice,
		"Error":      errMsg,
	}, "admin.html")
}

// SaveCatalog persists the edited catalog table verbatim.
func (h *HTTPHandler) SaveCatalog(c *gin.Context) {
	names := c.PostFormArray("name")
	ranks := c.PostFormArray("rank")
	weights := c.PostFormArray("weight")
	stocks := c.PostFormArray("stock")
	messages := c.PostFormArray("message")
	images := c.PostFormArray("image")

	field := func(values []string, i int) string {
		if i < len(values) {
			return values[i]
		}
		return ""
	}

	catalog := make([]models.PrizeEntry, 0, len(names))
	for i := range names {
		rank, _ := strconv.Atoi(field(ranks, i))
		weight, _ := strconv.ParseFloat(field(weights, i), 64)
		stock, _ := strconv.Atoi(field(stocks, i))
		catalog = append(catalog, models.PrizeEntry{
			Name:    names[i],
			Rank:    rank,
			Weight:  weight,
			Stock:   stock,
			Message: field(messages, i),
			Image:   field(images, i),
		})
	}

	if err := h.gacha.SaveCatalog(c.Request.Context(), catalog); err != nil {
		logger.Errorf("Error saving catalog: %v", err)
		h.showAdmin(c, "", "保存に失敗しました。変更は反映されていません。")
		return
	}
	h.showAdmin(c, "更新しました！", "")
}

// ResetStock restores the per-rank baseline stock.
func (h *HTTPHandler) ResetStock(c *gin.Context) {
	if err := h.gacha.ResetStock(c.Request.Context()); err != nil {
		logger.Errorf("Error resetting stock: %v", err)
		h.showAdmin(c, "", "在庫リセットに失敗しました。変更は反映されていません。")
		return
	}
	h.showAdmin(c, "在庫を初期数に戻しました！", "")
}

// ClearLedger empties the winner ledger.
func (h *HTTPHandler) ClearLedger(c *gin.Context) {
	if err := h.gacha.ClearLedger(c.Request.Context()); err != nil {
		logger.Errorf("Error clearing ledger: %v", err)
		h.showAdmin(c, "", "消去に失敗しました。変更は反映されていません。")
		return
	}
	h.showAdmin(c, "当選者リストを空にしました！", "")
}

// Redeem marks one winner record as redeemed.
func (h *HTTPHandler) Redeem(c *gin.Context) {
	recordID := c.PostForm("recordID")
	_, err := h.gacha.MarkRedeemed(c.Request.Context(), recordID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			h.showAdmin(c, "", services.ErrNotFound.Error())
		case errors.Is(err, services.ErrContention):
			h.showAdmin(c, "", err.Error())
		default:
			logger.Errorf("Error marking redeemed: %v", err)
			h.showAdmin(c, "", "使用処理に失敗しました。変更は反映されていません。")
		}
		return
	}
	h.showAdmin(c, "完了！", "")
}
