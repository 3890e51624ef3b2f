package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradekeeper/internal/auth"
	"tradekeeper/internal/fees"
	"tradekeeper/internal/models"
	"tradekeeper/internal/repository"
)

type AccountHandler struct {
	Repo   repository.Repository
	Fees   *fees.Ledger
	Logger *zap.Logger
}

func (h *AccountHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/accounts")
	group.POST("", h.register)
	group.GET("/:address", h.get)
	group.POST("/:address/deactivate", h.deactivate)
	group.PUT("/:address/delegate", h.setDelegate)
}

type registerRequest struct {
	Address string `json:"address" binding:"required"`
}

type registerResponse struct {
	Address string `json:"address"`
	APIKey  string `json:"api_key"`
}

func (h *AccountHandler) register(c *gin.Context) {
	caller, ok := auth.CallerFrom(c)
	if !ok || !caller.IsOperator() {
		Error(c, http.StatusForbidden, "operator role required", nil)
		return
	}
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		Error(c, http.StatusBadRequest, "address required", nil)
		return
	}
	ctx := c.Request.Context()
	existing, err := h.Repo.GetAccountByAddress(ctx, address)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if existing != nil {
		Error(c, http.StatusConflict, "account already registered", nil)
		return
	}
	account := &models.Account{
		Address:      address,
		Active:       true,
		APIKey:       uuid.NewString(),
		RegisteredAt: time.Now().UTC(),
	}
	if err := h.Repo.RegisterAccount(ctx, account); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("account registered", zap.String("account", address), zap.Int64("scan_index", account.ScanIndex))
	}
	Ok(c, registerResponse{Address: account.Address, APIKey: account.APIKey}, nil)
}

type accountView struct {
	Address      string               `json:"address"`
	Active       bool                 `json:"active"`
	Delegate     string               `json:"delegate,omitempty"`
	RegisteredAt time.Time            `json:"registered_at"`
	Alert        *models.PriceAlert   `json:"alert,omitempty"`
	TradeConfig  *models.TradeConfig  `json:"trade_config,omitempty"`
	RiskParams   *models.RiskParams   `json:"risk_params,omitempty"`
	ReportConfig *models.ReportConfig `json:"report_config,omitempty"`
	FeesOwed     string               `json:"fees_owed"`
}

func (h *AccountHandler) get(c *gin.Context) {
	address := strings.TrimSpace(c.Param("address"))
	caller, ok := auth.CallerFrom(c)
	if !ok || !caller.ActsFor(address) {
		Error(c, http.StatusForbidden, "not authorized for account", nil)
		return
	}
	ctx := c.Request.Context()
	account, err := h.Repo.GetAccountByAddress(ctx, address)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if account == nil {
		Error(c, http.StatusNotFound, repository.ErrNotRegistered.Error(), nil)
		return
	}
	view := accountView{
		Address:      account.Address,
		Active:       account.Active,
		Delegate:     account.Delegate,
		RegisteredAt: account.RegisteredAt,
	}
	if view.Alert, err = h.Repo.GetPriceAlertByAccount(ctx, address); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if view.TradeConfig, err = h.Repo.GetTradeConfigByAccount(ctx, address); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if view.RiskParams, err = h.Repo.GetRiskParamsByAccount(ctx, address); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if view.ReportConfig, err = h.Repo.GetReportConfigByAccount(ctx, address); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	owed, err := h.Fees.Owed(ctx, address)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	view.FeesOwed = owed.StringFixed(4)
	Ok(c, view, nil)
}

func (h *AccountHandler) deactivate(c *gin.Context) {
	address := strings.TrimSpace(c.Param("address"))
	caller, ok := auth.CallerFrom(c)
	if !ok || !caller.OwnerOf(address) {
		Error(c, http.StatusForbidden, "owner role required", nil)
		return
	}
	if err := h.Repo.SetAccountActive(c.Request.Context(), address, false); err != nil {
		status := http.StatusBadGateway
		if err == repository.ErrNotRegistered {
			status = http.StatusNotFound
		}
		Error(c, status, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"address": address, "active": false}, nil)
}

type delegateRequest struct {
	Delegate string `json:"delegate"`
}

func (h *AccountHandler) setDelegate(c *gin.Context) {
	address := strings.TrimSpace(c.Param("address"))
	// Only the owner may change the delegate; a delegate rotating itself
	// would defeat the point of the delegation boundary.
	caller, ok := auth.CallerFrom(c)
	if !ok || !caller.OwnerOf(address) {
		Error(c, http.StatusForbidden, "owner role required", nil)
		return
	}
	var req delegateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	delegate := strings.TrimSpace(req.Delegate)
	delegateKey := ""
	if delegate != "" {
		delegateKey = uuid.NewString()
	}
	if err := h.Repo.SetAccountDelegate(c.Request.Context(), address, delegate, delegateKey); err != nil {
		status := http.StatusBadGateway
		if err == repository.ErrNotRegistered {
			status = http.StatusNotFound
		}
		Error(c, status, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"address": address, "delegate": delegate, "delegate_key": delegateKey}, nil)
}
