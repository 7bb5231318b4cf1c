package main

import (
	"walletledger/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, authMW gin.HandlerFunc, h httpapi.Handlers) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", h.Login)
		}
	}

	protected := v1.Group("")
	protected.Use(authMW)
	{
		wallets := protected.Group("/wallets")
		{
			wallets.POST("", h.CreateWallet)
			wallets.GET("/:wallet_id/balance", h.GetWalletBalance)
			wallets.GET("/:wallet_id/history", h.ListHistory)
			wallets.POST("/:wallet_id/deposit", h.Deposit)
			wallets.POST("/:wallet_id/withdraw", h.Withdraw)
			wallets.POST("/:wallet_id/transfer", h.Transfer)
		}
	}
}
