/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package httpapi

import (
	"slices"
	"time"

	"coin-wallet-go/internal/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const readyTimeout = 2 * time.Second

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(server models.ServerConfig, auth models.AuthConfig, handler *Handler, logger *zap.Logger) *gin.Engine {
	if server.GinMode != "" {
		gin.SetMode(server.GinMode)
	}

	router := gin.New()
	router.Use(RequestID(), AccessLog(logger), Recovery(logger), corsMiddleware(server.AllowedOrigins))
	router.HandleMethodNotAllowed = true

	router.GET("/health", handler.health)
	router.GET("/ready", handler.ready)
	router.GET("/modules", handler.listModules)

	authed := router.Group("/", Authenticate(auth, logger))
	{
		wallet := authed.Group("/wallet")
		wallet.GET("", handler.getWallet)
		wallet.POST("", handler.createWallet)
		wallet.PUT("", handler.updateWallet)
		wallet.GET("/balance", handler.getBalance)
		wallet.GET("/transactions", handler.listTransactions)
		wallet.POST("/transactions", handler.createTransaction)
		wallet.POST("/orders", handler.placeOrder)

		sql := authed.Group("/sql")
		sql.GET("/progress", handler.sqlProgress)
		sql.POST("/upgrade", handler.sqlUpgrade)
		sql.GET("/eligibility", handler.sqlEligibility)
		sql.GET("/verify", handler.sqlVerify)

		authed.GET("/am/coin-lock-bonus", handler.coinLockBonus)
		authed.GET("/modules/:name/eligibility", handler.moduleEligibility)
	}

	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", requestIdHeader},
		ExposeHeaders: []string{requestIdHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
