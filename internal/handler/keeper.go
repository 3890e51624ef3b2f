package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"tradekeeper/internal/auth"
	"tradekeeper/internal/events"
	"tradekeeper/internal/repository"
	"tradekeeper/internal/scheduler"
)

// KeeperHandler exposes the two-phase upkeep protocol to external keeper
// processes, plus the run and trade-record history behind it.
type KeeperHandler struct {
	Repo      repository.Repository
	Scheduler *scheduler.Scheduler
	Hub       *events.Hub
	Logger    *zap.Logger
}

func (h *KeeperHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1")
	group.POST("/keeper/check", h.checkWork)
	group.POST("/keeper/perform", h.performWork)
	group.GET("/keeper/runs", h.listRuns)
	group.GET("/records", h.listRecords)
	group.GET("/records/stream", h.streamRecords)
}

func requireOperator(c *gin.Context) bool {
	caller, ok := auth.CallerFrom(c)
	if !ok || caller.Role != auth.RoleOperator {
		Error(c, http.StatusForbidden, "operator role required", nil)
		return false
	}
	return true
}

// authorizeWorkScope decides whether the caller may trigger the given
// accounts' work. Operators cover the whole registry; owners and delegates
// only ever their own account. Delegates can trigger but never resume
// automation or rotate themselves, which the account routes enforce.
func authorizeWorkScope(caller auth.Principal, addresses []string) error {
	if caller.IsOperator() {
		return nil
	}
	for _, address := range addresses {
		if !caller.ActsFor(address) {
			return fmt.Errorf("work item covers account %s outside caller scope", address)
		}
	}
	return nil
}

type checkWorkRequest struct {
	Offset int64 `json:"offset"`
}

func (h *KeeperHandler) checkWork(c *gin.Context) {
	caller, ok := auth.CallerFrom(c)
	if !ok {
		Error(c, http.StatusForbidden, "authentication required", nil)
		return
	}
	var req checkWorkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.Offset < 0 {
		Error(c, http.StatusBadRequest, "offset must not be negative", nil)
		return
	}
	hasWork, encoded, err := h.Scheduler.CheckWork(c.Request.Context(), req.Offset)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	// Non-operators get the work item narrowed to their own account, both
	// to bound what they can perform and to keep other accounts' pending
	// actions out of their view.
	if hasWork && !caller.IsOperator() {
		hasWork, encoded, err = scheduler.ScopeToAccount(encoded, caller.Address)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
	}
	resp := gin.H{"has_work": hasWork}
	if hasWork {
		resp["work_item"] = json.RawMessage(encoded)
	}
	Ok(c, resp, nil)
}

type performWorkRequest struct {
	WorkItem json.RawMessage `json:"work_item"`
}

func (h *KeeperHandler) performWork(c *gin.Context) {
	caller, ok := auth.CallerFrom(c)
	if !ok {
		Error(c, http.StatusForbidden, "authentication required", nil)
		return
	}
	var req performWorkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if !caller.IsOperator() {
		addresses, err := scheduler.CoveredAccounts(req.WorkItem)
		if err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		if err := authorizeWorkScope(caller, addresses); err != nil {
			Error(c, http.StatusForbidden, err.Error(), nil)
			return
		}
	}
	result, err := h.Scheduler.DoWork(c.Request.Context(), req.WorkItem)
	switch {
	case errors.Is(err, scheduler.ErrMalformedWorkItem):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, scheduler.ErrReentrantCall):
		Error(c, http.StatusConflict, err.Error(), nil)
	case err != nil:
		Error(c, http.StatusBadGateway, err.Error(), nil)
	default:
		Ok(c, result, nil)
	}
}

func (h *KeeperHandler) listRuns(c *gin.Context) {
	if !requireOperator(c) {
		return
	}
	limit := parseIntDefault(c.Query("limit"), 50)
	runs, err := h.Repo.ListUpkeepRuns(c.Request.Context(), limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, runs, gin.H{"count": len(runs)})
}

func (h *KeeperHandler) listRecords(c *gin.Context) {
	caller, ok := auth.CallerFrom(c)
	if !ok {
		Error(c, http.StatusForbidden, "authentication required", nil)
		return
	}
	params := repository.ListTradeRecordsParams{
		Limit:  parseIntDefault(c.Query("limit"), 100),
		Offset: parseIntDefault(c.Query("offset"), 0),
	}
	if account := strings.TrimSpace(c.Query("account")); account != "" {
		if !caller.ActsFor(account) {
			Error(c, http.StatusForbidden, "not authorized for account", nil)
			return
		}
		params.Account = &account
	} else if caller.Role != auth.RoleOperator {
		// Non-operators only ever see their own records.
		address := caller.Address
		params.Account = &address
	}
	if kind := strings.TrimSpace(c.Query("kind")); kind != "" {
		params.Kind = &kind
	}
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid since: "+err.Error(), nil)
			return
		}
		params.Since = &since
	}
	records, err := h.Repo.ListTradeRecords(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, records, gin.H{"count": len(records)})
}

// streamRecords upgrades to a websocket and relays live trade records from
// the hub until the client goes away.
func (h *KeeperHandler) streamRecords(c *gin.Context) {
	if !requireOperator(c) {
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket accept failed", zap.Error(err))
		}
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch := h.Hub.Subscribe(64)
	defer h.Hub.Unsubscribe(ch)

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case record, ok := <-ch:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, record); err != nil {
				return
			}
		}
	}
}

func parseIntDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
