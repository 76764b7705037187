// Package routes wires handler factories onto a gin.Engine. Grounded on
// the teacher's internal/api/routes/routes.go RegisterRoutes shape.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ledgercore/internal/api/handlers"
	"ledgercore/internal/api/middleware"
	"ledgercore/internal/pkg/logging"
)

// Register mounts every ledger endpoint and the operational endpoints
// (health, metrics) onto router.
func Register(router *gin.Engine, container *handlers.Container, log *logging.Logger) {
	router.Use(middleware.CorrelationID())
	router.Use(middleware.Prometheus())
	router.Use(middleware.Recovery(log))

	router.GET("/healthz", func(c *gin.Context) { c.Status(200) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/accounts", handlers.MakeCreateAccountHandler(container))
	router.GET("/accounts/:holderId", handlers.MakeGetAccountHandler(container))

	router.POST("/credit", handlers.MakeCreditHandler(container))
	router.POST("/debit", handlers.MakeDebitHandler(container))
	router.POST("/transfer", handlers.MakeTransferHandler(container))
	router.POST("/multi-transfer", handlers.MakeMultiTransferHandler(container))
	router.POST("/refund", handlers.MakeRefundHandler(container))

	router.POST("/holds", handlers.MakeCreateHoldHandler(container))
	router.GET("/holds/:holdId", handlers.MakeGetHoldHandler(container))
	router.POST("/holds/:holdId/commit", handlers.MakeCommitHoldHandler(container))
	router.POST("/holds/:holdId/void", handlers.MakeVoidHoldHandler(container))
	router.GET("/accounts/:holderId/holds/active", handlers.MakeListActiveHoldsHandler(container))
	router.GET("/accounts/:holderId/holds", handlers.MakeListAllHoldsHandler(container))
}
