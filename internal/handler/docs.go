package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# tradekeeper

Non-custodial automation keeper: watches the price oracle and per-account
configuration, and executes bounded buy/sell swaps, risk halts, and status
reports on a paginated upkeep cadence.

## Auth

All /api/* routes require a Bearer token.
- The operator token (config auth.operator_token) grants the operator role.
- An account's API key (issued at registration) grants the owner role.
- An account's delegate key grants the delegate role.
Health endpoints and this page are public.

## Owner routes

- POST   /api/v1/accounts                               (operator; onboards an owner, returns the API key)
- GET    /api/v1/accounts/:address
- POST   /api/v1/accounts/:address/deactivate
- PUT    /api/v1/accounts/:address/delegate
- PUT    /api/v1/accounts/:address/alert
- DELETE /api/v1/accounts/:address/alert
- PUT    /api/v1/accounts/:address/trade-config
- PUT    /api/v1/accounts/:address/risk-params
- POST   /api/v1/accounts/:address/risk/resume          (owner only, never delegate/operator)
- PUT    /api/v1/accounts/:address/report-config
- POST   /api/v1/accounts/:address/fees/pay

## Keeper routes

- POST /api/v1/keeper/check     {"offset": N}
- POST /api/v1/keeper/perform   {"work_item": <item from check>}
- GET  /api/v1/keeper/runs      (operator)
- GET  /api/v1/records
- GET  /api/v1/records/stream   (websocket, operator)

Operators cover the whole registry on check/perform. Owners and delegates
may trigger the same two calls scoped to their own account: check returns
only their entries, and perform rejects a work item covering anyone else.

Batch execution always succeeds at the protocol level; inspect run outcomes
and trade records to confirm work was done.
`)
	})
}
