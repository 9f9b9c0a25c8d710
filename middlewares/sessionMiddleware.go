package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tiendaluna/pos_backend/utils"
)

// SessionMiddleware stamps every request with a correlation id and picks up
// the POS session headers, so movements written deep in the ledger can be
// traced back to the terminal and cashier that caused them.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		correlationId := c.Request.Header.Get("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)

		if cashier := c.Request.Header.Get("X-Cashier-Name"); cashier != "" {
			ctx = utils.SetCashierNameInContext(ctx, cashier)
		}
		if terminal := c.Request.Header.Get("X-Pos-Terminal"); terminal != "" {
			ctx = utils.SetPosTerminalInContext(ctx, terminal)
		}

		c.Header("X-Correlation-Id", correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
