package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SetupRouter registers middleware and every route.
func SetupRouter(h *Handler, mode string, log zerolog.Logger) *gin.Engine {
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()

	httpLogger := log.With().Str("component", "HTTP").Logger()
	r.Use(RequestIDMiddleware(httpLogger))
	r.Use(RecoveryMiddleware(httpLogger))
	r.Use(LoggerMiddleware(httpLogger))
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		accounts := api.Group("/accounts")
		{
			accounts.POST("/onboard", h.Onboard)
			accounts.POST("/link", h.LinkAccount)
			accounts.GET("", h.ListAccounts)
			accounts.GET("/:id", h.GetAccount)
		}

		api.POST("/transfers", h.ExecuteTransfer)
		api.GET("/transactions", h.ListTransactions)

		feeds := api.Group("/bank-feeds")
		{
			feeds.GET("", h.ListBankFeeds)
			feeds.POST("", h.IngestBankFeed)
		}

		reconciliation := api.Group("/reconciliation")
		{
			reconciliation.GET("/logs", h.ListReconciliationLogs)
			reconciliation.POST("/run", h.RunReconciliation)
			reconciliation.POST("/manual", h.ConfirmManualMatch)
		}

		api.GET("/clabe/validate", h.ValidateCLABE)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
