package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"minter-core/internal/handler/request"
	"minter-core/internal/handler/response"
	"minter-core/internal/service"
	"minter-core/internal/state"
	"minter-core/pkg/errno"
	"minter-core/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WithdrawalReader is the read side of the pipeline.
type WithdrawalReader interface {
	Status(id state.BurnIndex) state.WithdrawalStatus
	Summary() service.Summary
}

type WithdrawalAcceptor interface {
	Accept(ctx context.Context, req state.WithdrawalRequest) error
}

type WithdrawalHandler struct {
	reader WithdrawalReader
	intake WithdrawalAcceptor
	now    func() time.Time
}

func NewWithdrawalHandler(reader WithdrawalReader, intake WithdrawalAcceptor) *WithdrawalHandler {
	return &WithdrawalHandler{reader: reader, intake: intake, now: time.Now}
}

// GetWithdrawal returns the stage, nonce, hashes, receipt and
// reimbursement of one withdrawal.
// GET /api/v1/withdrawals/:id
func (h *WithdrawalHandler) GetWithdrawal(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, errno.ErrInvalidWithdrawalID)
		return
	}
	st := h.reader.Status(state.BurnIndex(id))
	if st.Stage == state.StageUnknown {
		response.Error(c, errno.ErrWithdrawalNotFound)
		return
	}
	response.Success(c, st)
}

// GetMinter returns the minter address, next nonce and collection sizes.
// GET /api/v1/minter
func (h *WithdrawalHandler) GetMinter(c *gin.Context) {
	response.Success(c, h.reader.Summary())
}

// CreateWithdrawal accepts a burned withdrawal into the pending queue.
// POST /api/v1/withdrawals
func (h *WithdrawalHandler) CreateWithdrawal(c *gin.Context) {
	var req request.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	w, err := req.ToWithdrawalRequest(h.now())
	if err != nil {
		response.Error(c, errno.ErrInvalidWithdrawal.WithMessage(err.Error()))
		return
	}

	err = h.intake.Accept(c.Request.Context(), w)
	switch {
	case err == nil:
	case errors.Is(err, state.ErrDuplicateWithdrawal):
		response.Error(c, errno.ErrDuplicateWithdrawal)
		return
	case errors.Is(err, service.ErrInvalidRequest):
		response.Error(c, errno.ErrInvalidWithdrawal.WithMessage(err.Error()))
		return
	default:
		logger.Error("accept withdrawal failed", zap.Uint64("withdrawal_id", req.WithdrawalID), zap.Error(err))
		response.Error(c, errno.ErrStore)
		return
	}
	response.Success(c, h.reader.Status(w.ID))
}
