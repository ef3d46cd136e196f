package handlers

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	"github.com/poolcard/poolcard_service/internal/domain/services/ledger"
	"github.com/poolcard/poolcard_service/pkg/idempotency"
	"github.com/poolcard/poolcard_service/pkg/logger"
	"github.com/poolcard/poolcard_service/pkg/money"
)

// CardLister resolves the cards of a wallet
type CardLister interface {
	CardsByWallet(ctx context.Context, walletID uuid.UUID) ([]*entities.Card, error)
}

// LedgerHandler serves the card-scoped ledger endpoints
type LedgerHandler struct {
	ledger *ledger.Service
	cards  ledger.CardStore
	lister CardLister
	log    *logger.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(ledgerSvc *ledger.Service, cards ledger.CardStore, lister CardLister, log *logger.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledgerSvc, cards: cards, lister: lister, log: log}
}

type postAmountRequest struct {
	Amount   int64          `json:"amount" binding:"required,gt=0"`
	Metadata map[string]any `json:"metadata"`
}

type splitShareRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Amount int64     `json:"amount" binding:"required,gt=0"`
}

type captureRequest struct {
	Splits   []splitShareRequest `json:"splits" binding:"required,min=1,dive"`
	Metadata map[string]any      `json:"metadata"`
}

type postingResponse struct {
	TransactionID   string                  `json:"transaction_id"`
	Replayed        bool                    `json:"replayed"`
	Entries         []*entities.LedgerEntry `json:"entries"`
	AmountFormatted string                  `json:"amount_formatted,omitempty"`
}

// transactionID derives the ledger transaction id for a client posting.
// With an Idempotency-Key header the id is stable across retries, which
// is what makes the replay semantics hold end to end.
func transactionID(c *gin.Context, operation string) string {
	if key := c.GetHeader(idempotency.HeaderIdempotencyKey); key != "" {
		return fmt.Sprintf("api_%s_%s", operation, key)
	}
	return fmt.Sprintf("api_%s_%s", operation, uuid.New())
}

// Deposit handles POST /ledger/cards/:cardId/deposit
func (h *LedgerHandler) Deposit(c *gin.Context) {
	cardID, ok := pathUUID(c, "cardId")
	if !ok {
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		SendUnauthorized(c, "Authentication required")
		return
	}

	var req postAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendBadRequest(c, ErrCodeInvalidRequest, err.Error())
		return
	}

	result, err := h.ledger.PostCardDeposit(c.Request.Context(), ledger.DepositParams{
		CardID:        cardID,
		UserID:        userID,
		AmountMinor:   req.Amount,
		TransactionID: transactionID(c, "deposit"),
		Metadata:      req.Metadata,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondCreated(c, h.toResponse(c, cardID, req.Amount, result))
}

// Withdraw handles POST /ledger/cards/:cardId/withdraw, the immediate
// variant that debits the caller's equity without a provider payout
func (h *LedgerHandler) Withdraw(c *gin.Context) {
	cardID, ok := pathUUID(c, "cardId")
	if !ok {
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		SendUnauthorized(c, "Authentication required")
		return
	}

	var req postAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendBadRequest(c, ErrCodeInvalidRequest, err.Error())
		return
	}

	result, err := h.ledger.PostImmediateCardWithdrawal(c.Request.Context(), ledger.WithdrawalParams{
		CardID:        cardID,
		UserID:        userID,
		AmountMinor:   req.Amount,
		TransactionID: transactionID(c, "withdraw"),
		Metadata:      req.Metadata,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondCreated(c, h.toResponse(c, cardID, req.Amount, result))
}

// Capture handles POST /ledger/cards/:cardId/capture
func (h *LedgerHandler) Capture(c *gin.Context) {
	cardID, ok := pathUUID(c, "cardId")
	if !ok {
		return
	}

	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendBadRequest(c, ErrCodeInvalidRequest, err.Error())
		return
	}

	splits := make([]entities.SplitShare, 0, len(req.Splits))
	var total int64
	for _, s := range req.Splits {
		splits = append(splits, entities.SplitShare{UserID: s.UserID, AmountMinor: s.Amount})
		total += s.Amount
	}

	result, err := h.ledger.PostCardCapture(c.Request.Context(), ledger.CaptureParams{
		CardID:        cardID,
		Splits:        splits,
		TransactionID: transactionID(c, "capture"),
		Metadata:      req.Metadata,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondCreated(c, h.toResponse(c, cardID, total, result))
}

// Reconciliation handles GET /ledger/cards/:cardId/reconciliation
func (h *LedgerHandler) Reconciliation(c *gin.Context) {
	cardID, ok := pathUUID(c, "cardId")
	if !ok {
		return
	}

	recon, err := h.ledger.ReconcileCard(c.Request.Context(), cardID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, recon)
}

// Entries handles GET /ledger/cards/:cardId/entries
func (h *LedgerHandler) Entries(c *gin.Context) {
	cardID, ok := pathUUID(c, "cardId")
	if !ok {
		return
	}

	page := pagination(c)
	entries, err := h.ledger.EntriesByCard(c.Request.Context(), cardID, page.Limit, page.Offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, gin.H{
		"entries": entries,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

// WalletReconciliation handles GET /ledger/wallets/:walletId/reconciliation
func (h *LedgerHandler) WalletReconciliation(c *gin.Context) {
	walletID, ok := pathUUID(c, "walletId")
	if !ok {
		return
	}

	cards, err := h.lister.CardsByWallet(c.Request.Context(), walletID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	cardIDs := make([]uuid.UUID, 0, len(cards))
	for _, card := range cards {
		cardIDs = append(cardIDs, card.ID)
	}

	recon, err := h.ledger.ReconcileWallet(c.Request.Context(), walletID, cardIDs)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, recon)
}

func (h *LedgerHandler) toResponse(c *gin.Context, cardID uuid.UUID, amount int64, result *entities.PostingResult) postingResponse {
	resp := postingResponse{
		TransactionID: result.TransactionID,
		Replayed:      result.Replayed,
		Entries:       result.Entries,
	}
	if card, err := h.cards.CardByID(c.Request.Context(), cardID); err == nil {
		resp.AmountFormatted = money.FormatMinor(amount, card.Currency)
	}
	return resp
}
