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
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"coin-wallet-go/internal/apperr"
	"coin-wallet-go/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIdKey    = "request_id"
	userIdKey       = "user_id"
	requestIdHeader = "X-Request-ID"
)

// RequestID tags every request with an id, reusing the caller's when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIdHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(requestIdKey, id)
		c.Header(requestIdHeader, id)
		c.Next()
	}
}

func requestId(c *gin.Context) string {
	return c.GetString(requestIdKey)
}

// AccessLog logs one line per request once it completes.
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestId(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if userId := c.GetString(userIdKey); userId != "" {
			fields = append(fields, zap.String("user_id", userId))
		}
		logger.Info("HTTP request", fields...)
	}
}

// Recovery turns a panic into a 500 with the standard error body.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Panic recovered",
			zap.String("request_id", requestId(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
			zap.String("stack", string(debug.Stack())))
		respondWithError(c, logger, apperr.New(apperr.CodeInternal, fmt.Sprint(recovered)))
	})
}

// Authenticate resolves the caller's user id. Tokens are issued elsewhere;
// in jwt mode they are only verified here (HS256, optional issuer). In
// header mode a trusted gateway supplies the id.
func Authenticate(cfg models.AuthConfig, logger *zap.Logger) gin.HandlerFunc {
	resolve := func(c *gin.Context) (string, error) {
		return strings.TrimSpace(c.GetHeader(cfg.TrustedHeader)), nil
	}
	if cfg.Mode != models.AuthModeHeader {
		parser := newTokenParser(cfg)
		secret := []byte(cfg.JWTSecret)
		resolve = func(c *gin.Context) (string, error) {
			return userIdFromToken(c.GetHeader("Authorization"), parser, secret)
		}
	}

	return func(c *gin.Context) {
		userId, err := resolve(c)
		if err != nil || userId == "" {
			if err == nil {
				err = errors.New("no user id supplied")
			}
			respondWithError(c, logger, apperr.Wrap(apperr.CodeAuthenticationRequired, "authentication required", err))
			return
		}

		c.Set(userIdKey, userId)
		c.Request = c.Request.WithContext(models.WithUserId(c.Request.Context(), userId))
		c.Next()
	}
}

func newTokenParser(cfg models.AuthConfig) *jwt.Parser {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.JWTIssuer != "" {
		options = append(options, jwt.WithIssuer(cfg.JWTIssuer))
	}
	return jwt.NewParser(options...)
}

// userIdFromToken verifies a bearer token and returns its "sub" claim, or
// its "user_id" claim when there is no subject.
func userIdFromToken(header string, parser *jwt.Parser, secret []byte) (string, error) {
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return "", errors.New("missing bearer token")
	}

	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	if subject != "" {
		return subject, nil
	}
	userId, _ := claims["user_id"].(string)
	return userId, nil
}
