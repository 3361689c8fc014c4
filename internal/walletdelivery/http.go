// Package walletdelivery manages delivery layer of wallets.
package walletdelivery

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-exchange/internal/domain"
	"github.com/go-petr/pet-exchange/internal/middleware"
	"github.com/go-petr/pet-exchange/pkg/errorspkg"
	"github.com/go-petr/pet-exchange/pkg/web"
)

// Service provides service layer interface needed by wallet delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package walletdelivery
type Service interface {
	List(ctx context.Context, userID uuid.UUID) ([]domain.Wallet, error)
	ListTransactions(ctx context.Context, userID, walletID uuid.UUID, pageSize, pageID int32) ([]domain.Transaction, error)
}

// Handler facilitates wallet delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns wallet handler.
func NewHandler(ws Service) *Handler {
	return &Handler{
		service: ws,
	}
}

type listData struct {
	Wallets []domain.Wallet `json:"wallets"`
}

// List handles http request to list wallets of the user.
func (h *Handler) List(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	wallets, err := h.service.List(ctx, middleware.UserID(gctx))
	if err != nil {
		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: listData{wallets}})
}

type walletURI struct {
	ID string `uri:"id" binding:"required,uuid"`
}

type pageQuery struct {
	PageID   int32 `form:"page_id" binding:"required,min=1"`
	PageSize int32 `form:"page_size" binding:"required,min=1,max=100"`
}

type listTransactionsData struct {
	Transactions []domain.Transaction `json:"transactions"`
}

// ListTransactions handles http request to page through the journal of a wallet.
func (h *Handler) ListTransactions(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var uri walletURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	var req pageQuery
	if err := gctx.ShouldBindQuery(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	txs, err := h.service.ListTransactions(ctx, middleware.UserID(gctx), uuid.MustParse(uri.ID), req.PageSize, req.PageID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrWalletOwnerMismatch):
			gctx.JSON(http.StatusUnauthorized, web.Error(err))
		case errors.Is(err, domain.ErrWalletNotFound):
			gctx.JSON(http.StatusNotFound, web.Error(err))
		default:
			gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))
		}

		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: listTransactionsData{txs}})
}
