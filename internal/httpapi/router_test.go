package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"coin-wallet-go/internal/api"
	"coin-wallet-go/internal/apperr"
	"coin-wallet-go/internal/database"
	"coin-wallet-go/internal/eligibility"
	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/progression"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type testServer struct {
	router *gin.Engine
	db     *database.Service
}

func setupServer(t *testing.T, auth models.AuthConfig) *testServer {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "wallet.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  5 * time.Second,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	tracks, err := progression.LoadTracks("")
	require.NoError(t, err)
	modules, err := eligibility.LoadModules("")
	require.NoError(t, err)

	handler := NewHandler(
		api.NewLedgerService(db, nil, logger),
		progression.NewEvaluator(db, db, tracks, nil, logger),
		eligibility.NewGate(db, modules, logger),
		nil,
		logger,
	)
	router := NewRouter(models.ServerConfig{GinMode: gin.TestMode}, auth, handler, logger)
	return &testServer{router: router, db: db}
}

func headerAuth() models.AuthConfig {
	return models.AuthConfig{Mode: models.AuthModeHeader, TrustedHeader: "X-User-Id"}
}

func (s *testServer) do(t *testing.T, method, path, userId string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userId != "" {
		req.Header.Set("X-User-Id", userId)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	s := setupServer(t, headerAuth())

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ready"])
	assert.NotEmpty(t, w.Header().Get(requestIdHeader))
}

func TestWallet_RequiresAuthentication(t *testing.T) {
	s := setupServer(t, headerAuth())

	w := s.do(t, http.MethodGet, "/wallet", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, string(apperr.CodeAuthenticationRequired), body["code"])
	assert.NotEmpty(t, body["requestId"])
}

func TestWallet_Lifecycle(t *testing.T) {
	s := setupServer(t, headerAuth())

	w := s.do(t, http.MethodGet, "/wallet", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/wallet", "alice", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "0", decode(t, w)["balance"])

	w = s.do(t, http.MethodPost, "/wallet", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/wallet/transactions", "alice", map[string]any{"amount": 1500, "type": "deposit"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tx := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "completed", tx["status"])
	assert.Equal(t, "1500", tx["balanceAfter"])

	w = s.do(t, http.MethodPut, "/wallet", "alice", map[string]any{"action": "lock", "amount": "500", "durationMonths": 24})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]any)
	lock := data["lock"].(map[string]any)
	assert.Equal(t, "0.08", lock["bonusRate"])

	w = s.do(t, http.MethodGet, "/wallet/balance", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	balance := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "1000", balance["balance"])
	assert.Equal(t, "500", balance["lockedBalance"])
	assert.Equal(t, "500", balance["availableBalance"])

	w = s.do(t, http.MethodGet, "/wallet", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	wallet := decode(t, w)
	assert.Equal(t, "gold", wallet["loyaltyType"])
	assert.Equal(t, "0.08", wallet["loyaltyBonus"])
	assert.Len(t, wallet["transactionHistory"], 2)

	w = s.do(t, http.MethodGet, "/am/coin-lock-bonus", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	bonus := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "40", bonus["totalMonthlyReward"])

	w = s.do(t, http.MethodPut, "/wallet", "alice", map[string]any{"action": "unlock", "amount": 600})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperr.CodeInsufficientLockedBalance), decode(t, w)["code"])

	w = s.do(t, http.MethodPut, "/wallet", "alice", map[string]any{"action": "unlock", "amount": 500})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPut, "/wallet", "alice", map[string]any{"action": "updateLoyalty"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode(t, w)["data"].(map[string]any)["wallet"].(map[string]any)
	assert.Equal(t, "bronze", updated["loyaltyType"])
}

func TestTransactions_Errors(t *testing.T) {
	s := setupServer(t, headerAuth())

	w := s.do(t, http.MethodPost, "/wallet/transactions", "ghost", map[string]any{"amount": 10, "type": "deposit"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.do(t, http.MethodPost, "/wallet", "alice", nil)
	s.do(t, http.MethodPost, "/wallet/transactions", "alice", map[string]any{"amount": 1000, "type": "deposit"})

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   apperr.Code
	}{
		{"insufficient", map[string]any{"amount": 2000, "type": "withdrawal"}, http.StatusBadRequest, apperr.CodeInsufficientBalance},
		{"zero amount", map[string]any{"amount": 0, "type": "deposit"}, http.StatusBadRequest, apperr.CodeInvalidAmount},
		{"bad type", map[string]any{"amount": 5, "type": "steal"}, http.StatusBadRequest, apperr.CodeValidation},
		{"missing type", map[string]any{"amount": 5}, http.StatusBadRequest, apperr.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/wallet/transactions", "alice", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, string(tt.code), decode(t, w)["code"])
		})
	}

	w = s.do(t, http.MethodGet, "/wallet/balance", "alice", nil)
	assert.Equal(t, "1000", decode(t, w)["data"].(map[string]any)["balance"])
}

func TestTransactions_TransferAndList(t *testing.T) {
	s := setupServer(t, headerAuth())
	s.do(t, http.MethodPost, "/wallet", "alice", nil)
	for i := 0; i < 3; i++ {
		s.do(t, http.MethodPost, "/wallet/transactions", "alice", map[string]any{"amount": 100, "type": "deposit"})
	}

	w := s.do(t, http.MethodPost, "/wallet/transactions", "alice", map[string]any{"amount": 50, "type": "transfer"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tx := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "withdrawal", tx["type"])
	assert.Equal(t, "Transfer", tx["description"])

	w = s.do(t, http.MethodGet, "/wallet/transactions?page=1&limit=3&sortBy=amount&sortOrder=asc", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(4), page["total"])
	assert.Equal(t, float64(2), page["totalPages"])
	assert.Equal(t, true, page["hasMore"])
	items := page["items"].([]any)
	require.Len(t, items, 3)
	assert.Equal(t, "50", items[0].(map[string]any)["amount"])

	w = s.do(t, http.MethodGet, "/wallet/transactions?limit=1000", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/wallet/transactions?page=abc", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrders(t *testing.T) {
	s := setupServer(t, headerAuth())
	s.do(t, http.MethodPost, "/wallet", "alice", nil)
	s.do(t, http.MethodPost, "/wallet/transactions", "alice", map[string]any{"amount": 100, "type": "deposit"})

	w := s.do(t, http.MethodPost, "/wallet/orders", "alice", map[string]any{"orderId": "o-1", "amount": 40})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "order", decode(t, w)["data"].(map[string]any)["type"])

	w = s.do(t, http.MethodPost, "/wallet/orders", "alice", map[string]any{"orderId": "o-1", "amount": 40})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/wallet/orders", "alice", map[string]any{"amount": 40})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSQLEndpoints(t *testing.T) {
	s := setupServer(t, headerAuth())
	s.do(t, http.MethodPost, "/wallet", "alice", nil)
	s.do(t, http.MethodPost, "/wallet/transactions", "alice", map[string]any{"amount": 150, "type": "deposit"})

	w := s.do(t, http.MethodGet, "/sql/eligibility?targetLevel=1", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	eligibility := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, false, eligibility["eligible"])
	assert.Equal(t, []any{"referrals"}, eligibility["missingRequirements"])

	w = s.do(t, http.MethodGet, "/sql/eligibility?targetLevel=0", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperr.CodeInvalidTarget), decode(t, w)["code"])

	w = s.do(t, http.MethodGet, "/sql/eligibility", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/sql/upgrade", "alice", map[string]any{"targetLevel": 1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])

	require.NoError(t, s.db.RecordReferral(context.Background(), "alice", "bob"))

	w = s.do(t, http.MethodPost, "/sql/upgrade", "alice", map[string]any{"targetLevel": 1})
	require.Equal(t, http.StatusOK, w.Code)
	upgraded := decode(t, w)
	assert.Equal(t, true, upgraded["success"])
	assert.Equal(t, float64(1), upgraded["newLevel"])

	w = s.do(t, http.MethodGet, "/sql/progress", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	progress := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(1), progress["currentLevel"])
	assert.Equal(t, float64(2), progress["nextLevel"])

	w = s.do(t, http.MethodGet, "/sql/verify", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	verify := decode(t, w)
	assert.Equal(t, "pending", verify["status"])
	assert.Equal(t, float64(1), verify["sqlLevel"])
}

func TestModules(t *testing.T) {
	s := setupServer(t, headerAuth())

	w := s.do(t, http.MethodGet, "/modules", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"gosellr"}, decode(t, w)["data"].(map[string]any)["modules"])

	s.do(t, http.MethodPost, "/wallet", "alice", nil)
	s.do(t, http.MethodPost, "/wallet/transactions", "alice", map[string]any{"amount": 150, "type": "deposit"})
	s.do(t, http.MethodPut, "/wallet", "alice", map[string]any{"action": "lock", "amount": 50, "durationMonths": 3})

	w = s.do(t, http.MethodGet, "/modules/gosellr/eligibility", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	result := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, true, result["isEligible"])

	w = s.do(t, http.MethodGet, "/modules/unknown/eligibility", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(apperr.CodeUnknownModule), decode(t, w)["code"])
}

func signedToken(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod, key any) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestAuthenticate_JWT(t *testing.T) {
	s := setupServer(t, models.AuthConfig{Mode: models.AuthModeJWT, JWTSecret: testSecret, JWTIssuer: "auth.example"})
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"subject claim", signedToken(t, jwt.MapClaims{"sub": "alice", "iss": "auth.example", "exp": exp}, jwt.SigningMethodHS256, []byte(testSecret)), http.StatusCreated},
		{"user_id claim", signedToken(t, jwt.MapClaims{"user_id": "bob", "iss": "auth.example", "exp": exp}, jwt.SigningMethodHS256, []byte(testSecret)), http.StatusCreated},
		{"wrong secret", signedToken(t, jwt.MapClaims{"sub": "carol", "iss": "auth.example", "exp": exp}, jwt.SigningMethodHS256, []byte("other")), http.StatusUnauthorized},
		{"wrong issuer", signedToken(t, jwt.MapClaims{"sub": "dave", "iss": "evil", "exp": exp}, jwt.SigningMethodHS256, []byte(testSecret)), http.StatusUnauthorized},
		{"expired", signedToken(t, jwt.MapClaims{"sub": "erin", "iss": "auth.example", "exp": time.Now().Add(-time.Hour).Unix()}, jwt.SigningMethodHS256, []byte(testSecret)), http.StatusUnauthorized},
		{"no expiry", signedToken(t, jwt.MapClaims{"sub": "frank", "iss": "auth.example"}, jwt.SigningMethodHS256, []byte(testSecret)), http.StatusUnauthorized},
		{"wrong algorithm", signedToken(t, jwt.MapClaims{"sub": "gina", "iss": "auth.example", "exp": exp}, jwt.SigningMethodHS512, []byte(testSecret)), http.StatusUnauthorized},
		{"no subject", signedToken(t, jwt.MapClaims{"iss": "auth.example", "exp": exp}, jwt.SigningMethodHS256, []byte(testSecret)), http.StatusUnauthorized},
		{"garbage", "not-a-token", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/wallet", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), Recovery(zap.NewNop()))
	router.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, string(apperr.CodeInternal), body["code"])
	assert.Equal(t, "internal error", body["error"])
}
