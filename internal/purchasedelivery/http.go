// Package purchasedelivery manages delivery layer of purchases.
package purchasedelivery

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

// Service provides service layer interface needed by purchase delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package purchasedelivery
type Service interface {
	Purchase(ctx context.Context, userID uuid.UUID, symbol, amount string) (domain.PurchaseTxResult, error)
	Get(ctx context.Context, userID, id uuid.UUID) (domain.Purchase, error)
	List(ctx context.Context, userID uuid.UUID, pageSize, pageID int32) ([]domain.Purchase, error)
}

// Handler facilitates purchase delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns purchase handler.
func NewHandler(ps Service) *Handler {
	return &Handler{
		service: ps,
	}
}

func statusOf(err error) (int, error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrNegativeAmount),
		errors.Is(err, domain.ErrAmountPrecision):
		return http.StatusBadRequest, err
	case errors.Is(err, domain.ErrMarketNotFound),
		errors.Is(err, domain.ErrWalletNotFound),
		errors.Is(err, domain.ErrPurchaseNotFound):
		return http.StatusNotFound, err
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInactiveMarket):
		return http.StatusUnprocessableEntity, err
	case errors.Is(err, domain.ErrLockConflict):
		return http.StatusServiceUnavailable, domain.ErrLockConflict
	}

	return http.StatusInternalServerError, errorspkg.ErrInternal
}

type createRequest struct {
	Market string `json:"market" binding:"required,symbol"`
	Amount string `json:"amount" binding:"required"`
}

type createData struct {
	Purchase domain.PurchaseTxResult `json:"purchase"`
}

// Create handles http request to buy the base currency of a market.
func (h *Handler) Create(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req createRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	result, err := h.service.Purchase(ctx, middleware.UserID(gctx), req.Market, req.Amount)
	if err != nil {
		l.Info().Err(err).Send()

		status, err := statusOf(err)
		gctx.JSON(status, web.Error(err))

		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: createData{result}})
}

type getRequest struct {
	ID string `uri:"id" binding:"required,uuid"`
}

type getData struct {
	Purchase domain.Purchase `json:"purchase"`
}

// Get handles http request to get a purchase of the user.
func (h *Handler) Get(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req getRequest
	if err := gctx.ShouldBindUri(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	p, err := h.service.Get(ctx, middleware.UserID(gctx), uuid.MustParse(req.ID))
	if err != nil {
		status, err := statusOf(err)
		gctx.JSON(status, web.Error(err))

		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: getData{p}})
}

type listRequest struct {
	PageID   int32 `form:"page_id" binding:"required,min=1"`
	PageSize int32 `form:"page_size" binding:"required,min=1,max=100"`
}

type listData struct {
	Purchases []domain.Purchase `json:"purchases"`
}

// List handles http request to list purchases of the user.
func (h *Handler) List(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req listRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	purchases, err := h.service.List(ctx, middleware.UserID(gctx), req.PageSize, req.PageID)
	if err != nil {
		status, err := statusOf(err)
		gctx.JSON(status, web.Error(err))

		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: listData{purchases}})
}
