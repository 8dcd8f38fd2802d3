package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/ArkLabsHQ/bitswap/internal/core/application"
	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/internal/interface/web/types"
	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *application.Service
}

func (h *handler) getInfo(c *gin.Context) {
	c.JSON(http.StatusOK, types.Info{
		PublicKey: h.svc.Identity(),
		Version:   h.svc.BuildInfo.Version,
		Commit:    h.svc.BuildInfo.Commit,
		Date:      h.svc.BuildInfo.Date,
		Orderbook: h.svc.OrderBook().Len(),
	})
}

func (h *handler) getBalances(c *gin.Context) {
	balances, err := h.svc.Balances(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	res := make(map[string]string, len(balances))
	for token, amount := range balances {
		res[token] = amount.String()
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) listSwaps(c *gin.Context) {
	swaps, err := h.svc.ListSwaps(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	res := make([]types.Swap, 0, len(swaps))
	for _, swap := range swaps {
		res = append(res, toSwap(swap))
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) getSwap(c *gin.Context) {
	swap, err := h.svc.GetSwap(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSwap(*swap))
}

func (h *handler) propose(c *gin.Context) {
	var req types.ProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, htlc.Errorf(htlc.ErrInvalidTerms, "invalid request: %s", err))
		return
	}

	terms := htlc.Terms{
		FromToken:  htlc.Ticker(req.FromToken),
		FromAmount: req.FromAmount,
		ToToken:    htlc.Ticker(req.ToToken),
		ToAmount:   req.ToAmount,
	}
	swap, err := h.svc.Propose(c.Request.Context(), terms, req.RefundHeight)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSwap(*swap))
}

func (h *handler) lock(c *gin.Context)     { h.advance(c, h.svc.Lock) }
func (h *handler) announce(c *gin.Context) { h.advance(c, h.svc.Announce) }
func (h *handler) observe(c *gin.Context)  { h.advance(c, h.svc.ObserveCounterLock) }
func (h *handler) claim(c *gin.Context)    { h.advance(c, h.svc.Claim) }
func (h *handler) refund(c *gin.Context)   { h.advance(c, h.svc.Refund) }

func (h *handler) advance(
	c *gin.Context, op func(context.Context, string) (*domain.Swap, error),
) {
	swap, err := op(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSwap(*swap))
}

func (h *handler) orderbook(c *gin.Context) {
	intents := h.svc.Query(htlc.Ticker(c.Query("from")), htlc.Ticker(c.Query("to")))
	res := make([]types.Intent, 0, len(intents))
	for _, intent := range intents {
		res = append(res, toIntent(intent))
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) take(c *gin.Context) {
	var req types.TakeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, htlc.Errorf(htlc.ErrInvalidTerms, "invalid request: %s", err))
			return
		}
	}

	swap, err := h.svc.Take(c.Request.Context(), c.Param("id"), req.RefundHeight)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSwap(*swap))
}

func (h *handler) watch(c *gin.Context) {
	if err := h.svc.Watch(c.Request.Context(), c.Param("topic")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) stopWatching(c *gin.Context) {
	h.svc.StopWatching(c.Param("topic"))
	c.Status(http.StatusNoContent)
}

func (h *handler) fail(c *gin.Context, err error) {
	status := httpStatus(err)
	// nolint:all
	c.Error(err)

	res := types.Error{
		Error:       err.Error(),
		Retryable:   htlc.IsRetryable(err),
		FundsAtRisk: htlc.FundsAtRisk(err),
	}
	var herr *htlc.Error
	if errors.As(err, &herr) {
		res.Code = herr.Code
		res.Kind = herr.Kind.String()
	}
	c.AbortWithStatusJSON(status, res)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrSwapNotFound), errors.Is(err, application.ErrIntentNotFound):
		return http.StatusNotFound
	case errors.Is(err, htlc.ErrSecretNotFound):
		return http.StatusConflict
	case errors.Is(err, htlc.ErrExecutionAmbiguous):
		return http.StatusInternalServerError
	}

	switch htlc.KindOf(err) {
	case htlc.KindValidation:
		return http.StatusBadRequest
	case htlc.KindState:
		return http.StatusConflict
	case htlc.KindCrypto, htlc.KindExecution:
		return http.StatusUnprocessableEntity
	case htlc.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func toSwap(s domain.Swap) types.Swap {
	return types.Swap{
		Id:                  s.Id,
		Role:                s.Role.String(),
		Status:              s.Status.String(),
		CommitmentHash:      s.CommitmentHash.String(),
		FromToken:           string(s.Terms.FromToken),
		FromAmount:          s.Terms.FromAmount.String(),
		ToToken:             string(s.Terms.ToToken),
		ToAmount:            s.Terms.ToAmount.String(),
		LockerKey:           s.LockerKey,
		CounterpartyKey:     s.CounterpartyKey,
		RefundHeight:        s.RefundHeight,
		CounterRefundHeight: s.CounterRefundHeight,
		Topic:               s.Topic,
		IntentId:            s.IntentId,
		LockTxid:            s.LockTxId,
		CounterLockTxid:     s.CounterLockTxId,
		ClaimTxid:           s.ClaimTxId,
		RefundTxid:          s.RefundTxId,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
		Error:               s.ErrorMessage,
	}
}

func toIntent(i domain.SwapIntent) types.Intent {
	return types.Intent{
		Id:             i.Id,
		ProposerKey:    i.ProposerKey,
		Topic:          i.Topic,
		CommitmentHash: i.CommitmentHash.String(),
		FromToken:      string(i.Terms.FromToken),
		FromAmount:     i.Terms.FromAmount.String(),
		ToToken:        string(i.Terms.ToToken),
		ToAmount:       i.Terms.ToAmount.String(),
		RefundHeight:   i.RefundHeight,
		CreatedAt:      i.CreatedAt,
	}
}
