package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"goldpay/internal/clabe"
	"goldpay/internal/ledger"
	"goldpay/internal/logger"
	"goldpay/internal/model"
	"goldpay/internal/service"
	"goldpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Services are the use cases exposed over HTTP.
type Services struct {
	Accounts  *service.AccountService
	Transfers *service.TransferService
	Reconcile *service.ReconcileService
	Feeds     *service.FeedService
	Queries   *service.QueryService
	Catalog   clabe.InstitutionCatalog
}

// Handler holds every service the routes call into.
type Handler struct {
	accountService   *service.AccountService
	transferService  *service.TransferService
	reconcileService *service.ReconcileService
	feedService      *service.FeedService
	queryService     *service.QueryService
	catalog          clabe.InstitutionCatalog
	logger           zerolog.Logger
}

func NewHandler(svc Services, log zerolog.Logger) *Handler {
	catalog := svc.Catalog
	if catalog == nil {
		catalog = clabe.DefaultCatalog
	}
	return &Handler{
		accountService:   svc.Accounts,
		transferService:  svc.Transfers,
		reconcileService: svc.Reconcile,
		feedService:      svc.Feeds,
		queryService:     svc.Queries,
		catalog:          catalog,
		logger:           logger.Component(log, "Handler"),
	}
}

// writeError maps service errors onto the response envelope.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case service.IsValidation(err), errors.Is(err, ledger.ErrInvalidAccount):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrInvalidAmount):
		response.BusinessError(c, response.CodeInvalidAmount, err.Error())
	case errors.Is(err, service.ErrInsufficientFunds):
		response.BusinessError(c, response.CodeBalanceNotEnough, "insufficient funds")
	case errors.Is(err, service.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, "account not found")
	case errors.Is(err, service.ErrRecordNotFound):
		response.BusinessError(c, response.CodeRecordNotFound, err.Error())
	case errors.Is(err, service.ErrAlreadyReconciled):
		response.BusinessError(c, response.CodeAlreadyReconciled, err.Error())
	case errors.Is(err, service.ErrMatchRejected):
		response.BusinessError(c, response.CodeMatchRejected, err.Error())
	case errors.Is(err, service.ErrAlreadyOnboarded):
		response.BusinessError(c, response.CodeDuplicateRequest, err.Error())
	case errors.Is(err, service.ErrConcurrencyConflict):
		response.Conflict(c, "account is busy, retry the request")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ErrorWithStatus(c, 503, response.CodeServerError, "request cancelled")
	default:
		logger.FromContext(c.Request.Context(), h.logger).Error().Err(err).
			Str("path", c.FullPath()).
			Msg("request failed")
		response.ServerError(c, "internal error")
	}
}

func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// ============================================================
// Accounts
// ============================================================

type OnboardRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
}

// Onboard opens the owner's main account with the signup bonus.
// POST /api/v1/accounts/onboard
func (h *Handler) Onboard(c *gin.Context) {
	var req OnboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.accountService.Onboard(c.Request.Context(), req.OwnerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// LinkAccount registers an external account.
// POST /api/v1/accounts/link
func (h *Handler) LinkAccount(c *gin.Context) {
	var req service.LinkAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	account, err := h.accountService.LinkExternalAccount(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, account)
}

// ListAccounts returns every account of an owner.
// GET /api/v1/accounts?owner_id=xxx
func (h *Handler) ListAccounts(c *gin.Context) {
	accounts, err := h.accountService.ListAccounts(c.Request.Context(), c.Query("owner_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if accounts == nil {
		accounts = []*model.Account{}
	}
	response.Success(c, accounts)
}

// GetAccount returns one account.
// GET /api/v1/accounts/:id
func (h *Handler) GetAccount(c *gin.Context) {
	account, err := h.accountService.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, account)
}

// ============================================================
// Transfers
// ============================================================

// ExecuteTransfer debits the source account and records the transfer.
// POST /api/v1/transfers
//
// The receipt is returned once the debit, the transaction, the settlement
// feed line and the outbox event are committed together.
func (h *Handler) ExecuteTransfer(c *gin.Context) {
	var req service.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	receipt, err := h.transferService.ExecuteTransfer(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, receipt)
}

// ============================================================
// Read model
// ============================================================

// ListTransactions GET /api/v1/transactions?owner_id=xxx&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	page, pageSize := pagination(c)
	result, err := h.queryService.ListTransactions(c.Request.Context(), c.Query("owner_id"), page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ListBankFeeds GET /api/v1/bank-feeds?owner_id=xxx&page=1&page_size=20
func (h *Handler) ListBankFeeds(c *gin.Context) {
	page, pageSize := pagination(c)
	result, err := h.queryService.ListBankFeeds(c.Request.Context(), c.Query("owner_id"), page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ListReconciliationLogs GET /api/v1/reconciliation/logs?owner_id=xxx
func (h *Handler) ListReconciliationLogs(c *gin.Context) {
	page, pageSize := pagination(c)
	result, err := h.queryService.ListReconciliationLogs(c.Request.Context(), c.Query("owner_id"), page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// Bank feeds and reconciliation
// ============================================================

// IngestBankFeed appends an external statement line.
// POST /api/v1/bank-feeds
func (h *Handler) IngestBankFeed(c *gin.Context) {
	var req service.IngestFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	feed, err := h.feedService.Ingest(c.Request.Context(), &req)
	if errors.Is(err, service.ErrDuplicateFeed) {
		response.Success(c, gin.H{"bank_feed": feed, "duplicate": true})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"bank_feed": feed, "duplicate": false})
}

type RunReconciliationRequest struct {
	OwnerID string `json:"owner_id"`
}

// RunReconciliation runs a pass for one owner, or for every owner with
// pending records when owner_id is empty.
// POST /api/v1/reconciliation/run
func (h *Handler) RunReconciliation(c *gin.Context) {
	var req RunReconciliationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, "invalid request: "+err.Error())
			return
		}
	}

	if strings.TrimSpace(req.OwnerID) == "" {
		reports, err := h.reconcileService.ReconcileAll(c.Request.Context())
		if err != nil && len(reports) == 0 {
			h.writeError(c, err)
			return
		}
		if reports == nil {
			reports = []*service.ReconcileReport{}
		}
		data := gin.H{"reports": reports}
		if err != nil {
			data["error"] = err.Error()
		}
		response.Success(c, data)
		return
	}

	report, err := h.reconcileService.Reconcile(c.Request.Context(), req.OwnerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, report)
}

type ManualMatchRequest struct {
	OwnerID       string `json:"owner_id" binding:"required"`
	TransactionID string `json:"transaction_id" binding:"required"`
	BankFeedID    string `json:"bank_feed_id" binding:"required"`
}

// ConfirmManualMatch records a reviewer's pairing.
// POST /api/v1/reconciliation/manual
func (h *Handler) ConfirmManualMatch(c *gin.Context) {
	var req ManualMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	log, err := h.reconcileService.ConfirmManualMatch(c.Request.Context(), req.OwnerID, req.TransactionID, req.BankFeedID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, log)
}

// ============================================================
// CLABE
// ============================================================

// ValidateCLABE GET /api/v1/clabe/validate?code=xxx
func (h *Handler) ValidateCLABE(c *gin.Context) {
	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		response.ParamError(c, "code is required")
		return
	}

	data := gin.H{
		"code":        code,
		"valid":       true,
		"institution": clabe.LookupInstitutionIn(h.catalog, code),
	}
	if err := clabe.Check(code); err != nil {
		data["valid"] = false
		data["reason"] = err.Error()
	}
	response.Success(c, data)
}
