package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"walletledger/internal/auth"
	"walletledger/internal/ratelimit"
	"walletledger/internal/wallet"
)

// Handlers groups HTTP handlers for dependency injection. Keep these
// thin: parse/validate input, call the engine, map its error taxonomy
// to a status code, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Engine  *wallet.Engine
	Limiter *ratelimit.Limiter
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
}

// Login issues a JWT token pair for a caller-supplied opaque user id.
//
// NOTE: this is a skeleton-only endpoint; real deployments must
// authenticate the caller before minting a token (spec treats token
// verification as an external collaborator, §1).
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Wallet ---

type createWalletRequest struct {
	Currency string `json:"currency"`
}

func (h Handlers) CreateWallet(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user id required"})
		return
	}
	var req createWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	w, err := h.Engine.CreateWallet(c.Request.Context(), userID, wallet.Currency(req.Currency), correlationID(c))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h Handlers) GetWalletBalance(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user id required"})
		return
	}
	walletID := c.Param("wallet_id")
	if walletID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "wallet_id required"})
		return
	}

	w, readAt, err := h.Engine.GetBalance(c.Request.Context(), walletID, userID)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"wallet_id": w.ID,
		"balance":   w.Balance,
		"currency":  w.Currency,
		"read_at":   readAt,
	})
}

type mutationRequest struct {
	Amount         string            `json:"amount"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

func (h Handlers) Deposit(c *gin.Context) {
	h.mutateSingle(c, func(userID string, req mutationRequest) (wallet.JournalEntry, error) {
		return h.Engine.Deposit(c.Request.Context(), wallet.MutationRequest{
			WalletID:       c.Param("wallet_id"),
			CallerUserID:   userID,
			Amount:         req.Amount,
			IdempotencyKey: req.IdempotencyKey,
			CorrelationID:  correlationID(c),
			Metadata:       req.Metadata,
		})
	})
}

func (h Handlers) Withdraw(c *gin.Context) {
	h.mutateSingle(c, func(userID string, req mutationRequest) (wallet.JournalEntry, error) {
		return h.Engine.Withdraw(c.Request.Context(), wallet.MutationRequest{
			WalletID:       c.Param("wallet_id"),
			CallerUserID:   userID,
			Amount:         req.Amount,
			IdempotencyKey: req.IdempotencyKey,
			CorrelationID:  correlationID(c),
			Metadata:       req.Metadata,
		})
	})
}

func (h Handlers) mutateSingle(c *gin.Context, call func(userID string, req mutationRequest) (wallet.JournalEntry, error)) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user id required"})
		return
	}
	walletID := c.Param("wallet_id")
	if walletID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "wallet_id required"})
		return
	}

	if h.Limiter != nil {
		decision, _ := h.Limiter.AllowMutation(c.Request.Context(), walletID, userID)
		if !decision.Allowed {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limit_exceeded", "reset_at": decision.ResetAt})
			return
		}
	}

	var req mutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	entry, err := call(userID, req)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

type transferRequest struct {
	DestinationWalletID string            `json:"destination_wallet_id"`
	Amount              string            `json:"amount"`
	IdempotencyKey      string            `json:"idempotency_key,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

func (h Handlers) Transfer(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user id required"})
		return
	}
	sourceWalletID := c.Param("wallet_id")
	if sourceWalletID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "wallet_id required"})
		return
	}

	if h.Limiter != nil {
		decision, _ := h.Limiter.AllowMutation(c.Request.Context(), sourceWalletID, userID)
		if !decision.Allowed {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limit_exceeded", "reset_at": decision.ResetAt})
			return
		}
	}

	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	debit, credit, err := h.Engine.Transfer(c.Request.Context(), wallet.TransferRequest{
		SourceWalletID: sourceWalletID,
		DestWalletID:   req.DestinationWalletID,
		CallerUserID:   userID,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  correlationID(c),
		Metadata:       req.Metadata,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"debit": debit, "credit": credit})
}

func (h Handlers) ListHistory(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user id required"})
		return
	}
	walletID := c.Param("wallet_id")
	if walletID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "wallet_id required"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := wallet.HistoryFilter{
		Type:     wallet.JournalType(c.Query("type")),
		Page:     page,
		PageSize: pageSize,
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = t
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = t
		}
	}

	history, err := h.Engine.ListHistory(c.Request.Context(), walletID, userID, filter)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries":     history.Entries,
		"total_items": history.TotalItems,
		"total_pages": history.TotalPages,
	})
}

func correlationID(c *gin.Context) string {
	if v := c.GetHeader("X-Correlation-Id"); v != "" {
		return v
	}
	return uuid.NewString()
}

var errorStatusByKind = map[wallet.Kind]int{
	wallet.KindValidation:          http.StatusBadRequest,
	wallet.KindUnauthorized:        http.StatusUnauthorized,
	wallet.KindForbidden:           http.StatusForbidden,
	wallet.KindNotFound:            http.StatusNotFound,
	wallet.KindConflict:            http.StatusConflict,
	wallet.KindInsufficientFunds:   http.StatusUnprocessableEntity,
	wallet.KindCurrencyMismatch:    http.StatusUnprocessableEntity,
	wallet.KindAmountExceedsLimit:  http.StatusUnprocessableEntity,
	wallet.KindBalanceExceedsLimit: http.StatusUnprocessableEntity,
	wallet.KindInvalidTransfer:     http.StatusUnprocessableEntity,
	wallet.KindInvalidState:        http.StatusConflict,
	wallet.KindRateLimitExceeded:   http.StatusTooManyRequests,
	wallet.KindInternal:            http.StatusInternalServerError,
}

func writeEngineError(c *gin.Context, err error) {
	werr, ok := err.(*wallet.Error)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	status, ok := errorStatusByKind[werr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":   string(werr.Kind),
		"message": werr.Message,
		"details": werr.Details,
	})
}
