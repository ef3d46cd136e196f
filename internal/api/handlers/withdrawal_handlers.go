package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	"github.com/poolcard/poolcard_service/internal/domain/services/withdrawal"
	"github.com/poolcard/poolcard_service/pkg/logger"
)

// WithdrawalHandler serves the wallet-scoped withdrawal endpoints
type WithdrawalHandler struct {
	withdrawals *withdrawal.Service
	cards       CardLister
	log         *logger.Logger
}

// NewWithdrawalHandler creates a new withdrawal handler
func NewWithdrawalHandler(withdrawals *withdrawal.Service, cards CardLister, log *logger.Logger) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals, cards: cards, log: log}
}

type createWithdrawalRequest struct {
	AmountMinor int64  `json:"amount_minor" binding:"required,gt=0"`
	Currency    string `json:"currency" binding:"required,currency_code"`
}

// Create handles POST /wallet/:walletId/withdrawals
func (h *WithdrawalHandler) Create(c *gin.Context) {
	walletID, ok := pathUUID(c, "walletId")
	if !ok {
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		SendUnauthorized(c, "Authentication required")
		return
	}

	var req createWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendBadRequest(c, ErrCodeInvalidRequest, err.Error())
		return
	}

	cards, err := h.cards.CardsByWallet(c.Request.Context(), walletID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if len(cards) == 0 {
		SendNotFound(c, "CARD_NOT_FOUND", "wallet has no card")
		return
	}

	request, transfer, err := h.withdrawals.Request(c.Request.Context(), withdrawal.RequestParams{
		WalletID:    walletID,
		CardID:      cards[0].ID,
		UserID:      userID,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondCreated(c, gin.H{
		"request":  request,
		"transfer": transfer,
	})
}

// List handles GET /wallet/:walletId/withdrawals
func (h *WithdrawalHandler) List(c *gin.Context) {
	walletID, ok := pathUUID(c, "walletId")
	if !ok {
		return
	}

	var status *entities.WithdrawalStatus
	if raw := c.Query("status"); raw != "" {
		s := entities.WithdrawalStatus(raw)
		if err := s.Validate(); err != nil {
			SendBadRequest(c, ErrCodeInvalidRequest, err.Error())
			return
		}
		status = &s
	}

	page := pagination(c)
	requests, err := h.withdrawals.List(c.Request.Context(), walletID, status, page.Limit, page.Offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, gin.H{
		"withdrawals": requests,
		"limit":       page.Limit,
		"offset":      page.Offset,
	})
}

// Get handles GET /wallet/:walletId/withdrawals/:withdrawalId
func (h *WithdrawalHandler) Get(c *gin.Context) {
	walletID, ok := pathUUID(c, "walletId")
	if !ok {
		return
	}
	withdrawalID, ok := pathUUID(c, "withdrawalId")
	if !ok {
		return
	}

	request, transfer, err := h.withdrawals.Get(c.Request.Context(), walletID, withdrawalID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, gin.H{
		"request":  request,
		"transfer": transfer,
	})
}

// Cancel handles POST /wallet/:walletId/withdrawals/:withdrawalId/cancel
func (h *WithdrawalHandler) Cancel(c *gin.Context) {
	walletID, ok := pathUUID(c, "walletId")
	if !ok {
		return
	}
	withdrawalID, ok := pathUUID(c, "withdrawalId")
	if !ok {
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		SendUnauthorized(c, "Authentication required")
		return
	}

	request, err := h.withdrawals.Cancel(c.Request.Context(), walletID, withdrawalID, userID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, gin.H{"request": request})
}
