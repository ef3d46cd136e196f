package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	"github.com/poolcard/poolcard_service/internal/domain/services/funding"
	"github.com/poolcard/poolcard_service/pkg/logger"
)

// WalletGetter fetches wallets for authorization checks
type WalletGetter interface {
	WalletByID(ctx context.Context, id uuid.UUID) (*entities.Wallet, error)
}

// FundingRouteHandler serves the admin funding-route endpoints
type FundingRouteHandler struct {
	funding *funding.Service
	wallets WalletGetter
	log     *logger.Logger
}

// NewFundingRouteHandler creates a new funding route handler
func NewFundingRouteHandler(fundingSvc *funding.Service, wallets WalletGetter, log *logger.Logger) *FundingRouteHandler {
	return &FundingRouteHandler{funding: fundingSvc, wallets: wallets, log: log}
}

type upsertRouteRequest struct {
	ProviderName      string    `json:"provider_name" binding:"required"`
	ProviderAccountID string    `json:"provider_account_id" binding:"required"`
	Reference         string    `json:"reference"`
	UserID            uuid.UUID `json:"user_id" binding:"required"`
	CardID            uuid.UUID `json:"card_id" binding:"required"`
}

// requireAdmin checks the caller administers the wallet
func (h *FundingRouteHandler) requireAdmin(c *gin.Context, walletID uuid.UUID) bool {
	userID, err := getUserID(c)
	if err != nil {
		SendUnauthorized(c, "Authentication required")
		return false
	}

	wallet, err := h.wallets.WalletByID(c.Request.Context(), walletID)
	if err != nil {
		respondDomainError(c, err)
		return false
	}

	if wallet.AdminUserID != userID {
		SendForbidden(c, "wallet admin required")
		return false
	}
	return true
}

// Upsert handles POST /wallet/:walletId/funding-routes
func (h *FundingRouteHandler) Upsert(c *gin.Context) {
	walletID, ok := pathUUID(c, "walletId")
	if !ok {
		return
	}
	if !h.requireAdmin(c, walletID) {
		return
	}

	var req upsertRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendBadRequest(c, ErrCodeInvalidRequest, err.Error())
		return
	}

	route := &entities.BaasFundingRoute{
		ProviderName:      req.ProviderName,
		ProviderAccountID: req.ProviderAccountID,
		Reference:         req.Reference,
		WalletID:          walletID,
		CardID:            req.CardID,
		UserID:            req.UserID,
	}
	if err := h.funding.UpsertRoute(c.Request.Context(), route); err != nil {
		respondDomainError(c, err)
		return
	}

	respondCreated(c, gin.H{"route": route})
}

// List handles GET /wallet/:walletId/funding-routes
func (h *FundingRouteHandler) List(c *gin.Context) {
	walletID, ok := pathUUID(c, "walletId")
	if !ok {
		return
	}
	if !h.requireAdmin(c, walletID) {
		return
	}

	routes, err := h.funding.RoutesByWallet(c.Request.Context(), walletID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, gin.H{"routes": routes})
}
