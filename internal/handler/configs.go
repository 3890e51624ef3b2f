package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradekeeper/internal/auth"
	"tradekeeper/internal/config"
	"tradekeeper/internal/fees"
	"tradekeeper/internal/models"
	"tradekeeper/internal/repository"
	"tradekeeper/internal/risk"
)

// ConfigHandler is the owner-facing configuration plane. Every route fails
// synchronously with a specific error; nothing here is fire-and-forget.
type ConfigHandler struct {
	Repo   repository.Repository
	Risk   *risk.Gate
	Fees   *fees.Ledger
	Config config.KeeperConfig
	Logger *zap.Logger
}

func (h *ConfigHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/accounts/:address")
	group.PUT("/alert", h.putAlert)
	group.DELETE("/alert", h.deleteAlert)
	group.PUT("/trade-config", h.putTradeConfig)
	group.PUT("/risk-params", h.putRiskParams)
	group.POST("/risk/resume", h.resumeAutomation)
	group.PUT("/report-config", h.putReportConfig)
	group.POST("/fees/pay", h.payFees)
}

// requireOwner resolves the account and checks the caller owns it.
func (h *ConfigHandler) requireOwner(c *gin.Context) (string, bool) {
	address := strings.TrimSpace(c.Param("address"))
	caller, ok := auth.CallerFrom(c)
	if !ok || !caller.OwnerOf(address) {
		Error(c, http.StatusForbidden, "owner role required", nil)
		return "", false
	}
	account, err := h.Repo.GetAccountByAddress(c.Request.Context(), address)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return "", false
	}
	if account == nil {
		Error(c, http.StatusNotFound, repository.ErrNotRegistered.Error(), nil)
		return "", false
	}
	return address, true
}

type alertRequest struct {
	TargetPrice   decimal.Decimal `json:"target_price"`
	Direction     string          `json:"direction"`
	ExecuteAction bool            `json:"execute_action"`
	Active        bool            `json:"active"`
	Cooldown      string          `json:"cooldown"`
}

func (h *ConfigHandler) putAlert(c *gin.Context) {
	address, ok := h.requireOwner(c)
	if !ok {
		return
	}
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.TargetPrice.LessThanOrEqual(decimal.Zero) {
		Error(c, http.StatusBadRequest, "target_price must be positive", nil)
		return
	}
	if req.Direction != models.AlertAbove && req.Direction != models.AlertBelow {
		Error(c, http.StatusBadRequest, "direction must be above or below", nil)
		return
	}
	cooldown, err := time.ParseDuration(req.Cooldown)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid cooldown: "+err.Error(), nil)
		return
	}
	minCooldown := h.Config.MinAlertCooldown
	if minCooldown <= 0 {
		minCooldown = 5 * time.Minute
	}
	if cooldown < minCooldown {
		Error(c, http.StatusBadRequest, "cooldown below minimum "+minCooldown.String(), nil)
		return
	}
	item := &models.PriceAlert{
		AccountAddress: address,
		TargetPrice:    req.TargetPrice,
		Direction:      req.Direction,
		ExecuteAction:  req.ExecuteAction,
		Active:         req.Active,
		Cooldown:       cooldown,
	}
	if err := h.Repo.UpsertPriceAlert(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

func (h *ConfigHandler) deleteAlert(c *gin.Context) {
	address, ok := h.requireOwner(c)
	if !ok {
		return
	}
	if err := h.Repo.DeletePriceAlert(c.Request.Context(), address); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"address": address, "alert": nil}, nil)
}

type tradeConfigRequest struct {
	BuyBelowPrice  decimal.Decimal `json:"buy_below_price"`
	SellAbovePrice decimal.Decimal `json:"sell_above_price"`
	BuyAmount      decimal.Decimal `json:"buy_amount"`
	SellAmount     decimal.Decimal `json:"sell_amount"`
	FeeTier        int             `json:"fee_tier"`
	SlippageBps    int             `json:"slippage_bps"`
	Active         bool            `json:"active"`
}

func (h *ConfigHandler) putTradeConfig(c *gin.Context) {
	address, ok := h.requireOwner(c)
	if !ok {
		return
	}
	var req tradeConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if !models.ValidFeeTier(req.FeeTier) {
		Error(c, http.StatusBadRequest, "fee_tier must be one of 500, 3000, 10000", nil)
		return
	}
	if req.SlippageBps <= 0 || req.SlippageBps > models.MaxSlippageBps {
		Error(c, http.StatusBadRequest, "slippage_bps must be in (0, 500]", nil)
		return
	}
	if req.BuyBelowPrice.IsNegative() || req.SellAbovePrice.IsNegative() ||
		req.BuyAmount.IsNegative() || req.SellAmount.IsNegative() {
		Error(c, http.StatusBadRequest, "prices and amounts must not be negative", nil)
		return
	}
	item := &models.TradeConfig{
		AccountAddress: address,
		BuyBelowPrice:  req.BuyBelowPrice,
		SellAbovePrice: req.SellAbovePrice,
		BuyAmount:      req.BuyAmount,
		SellAmount:     req.SellAmount,
		FeeTier:        req.FeeTier,
		SlippageBps:    req.SlippageBps,
		Active:         req.Active,
	}
	if err := h.Repo.UpsertTradeConfig(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

type riskParamsRequest struct {
	StopLossPrice decimal.Decimal `json:"stop_loss_price"`
	DailyMaxLoss  decimal.Decimal `json:"daily_max_loss"`
}

func (h *ConfigHandler) putRiskParams(c *gin.Context) {
	address, ok := h.requireOwner(c)
	if !ok {
		return
	}
	var req riskParamsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.StopLossPrice.IsNegative() || req.DailyMaxLoss.IsNegative() {
		Error(c, http.StatusBadRequest, "risk thresholds must not be negative", nil)
		return
	}
	item := &models.RiskParams{
		AccountAddress: address,
		StopLossPrice:  req.StopLossPrice,
		DailyMaxLoss:   req.DailyMaxLoss,
		LastResetAt:    time.Now().UTC(),
	}
	if err := h.Repo.UpsertRiskParams(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

func (h *ConfigHandler) resumeAutomation(c *gin.Context) {
	address := strings.TrimSpace(c.Param("address"))
	caller, ok := auth.CallerFrom(c)
	if !ok {
		Error(c, http.StatusForbidden, "owner role required", nil)
		return
	}
	err := h.Risk.ResumeAutomation(c.Request.Context(), caller, address)
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		Error(c, http.StatusForbidden, "only the account owner may resume automation", nil)
	case errors.Is(err, repository.ErrNotRegistered):
		Error(c, http.StatusNotFound, err.Error(), nil)
	case err != nil:
		Error(c, http.StatusBadGateway, err.Error(), nil)
	default:
		Ok(c, gin.H{"address": address, "automation_disabled": false}, nil)
	}
}

type reportConfigRequest struct {
	AlertThreshold decimal.Decimal `json:"alert_threshold"`
	ReportInterval string          `json:"report_interval"`
	Active         bool            `json:"active"`
}

func (h *ConfigHandler) putReportConfig(c *gin.Context) {
	address, ok := h.requireOwner(c)
	if !ok {
		return
	}
	var req reportConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	interval, err := time.ParseDuration(req.ReportInterval)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid report_interval: "+err.Error(), nil)
		return
	}
	minInterval := h.Config.MinReportInterval
	if minInterval <= 0 {
		minInterval = time.Hour
	}
	if interval < minInterval {
		Error(c, http.StatusBadRequest, "report_interval below minimum "+minInterval.String(), nil)
		return
	}
	item := &models.ReportConfig{
		AccountAddress: address,
		AlertThreshold: req.AlertThreshold,
		ReportInterval: interval,
		Active:         req.Active,
	}
	if err := h.Repo.UpsertReportConfig(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

func (h *ConfigHandler) payFees(c *gin.Context) {
	address, ok := h.requireOwner(c)
	if !ok {
		return
	}
	paid, err := h.Fees.Pay(c.Request.Context(), address)
	switch {
	case errors.Is(err, fees.ErrNothingOwed):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	case err != nil:
		Error(c, http.StatusBadGateway, err.Error(), nil)
	default:
		Ok(c, gin.H{"address": address, "paid": paid.StringFixed(4)}, nil)
	}
}
