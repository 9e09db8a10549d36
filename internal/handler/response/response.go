package response

import (
	"net/http"

	"minter-core/pkg/errno"

	"github.com/gin-gonic/gin"
)

// Response is the envelope of every API reply. Code 0 means success.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    any    `json:"data"`
}

// statusByCode overrides the HTTP status of coded errors. Codes missing
// here are business errors and keep 200.
var statusByCode = map[int]int{
	errno.InternalServerError.Code:    http.StatusInternalServerError,
	errno.ErrStore.Code:               http.StatusServiceUnavailable,
	errno.ErrBind.Code:                http.StatusBadRequest,
	errno.ErrInvalidWithdrawal.Code:   http.StatusBadRequest,
	errno.ErrInvalidWithdrawalID.Code: http.StatusBadRequest,
	errno.ErrWithdrawalNotFound.Code:  http.StatusNotFound,
	errno.ErrDuplicateWithdrawal.Code: http.StatusConflict,
}

func Success(c *gin.Context, data any) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(http.StatusOK, Response{Code: errno.OK.Code, Message: errno.OK.Message, Data: data})
}

// Error writes err as a coded reply. Uncoded errors become InternalServerError
// with the error text as message.
func Error(c *gin.Context, err error) {
	code, msg := errno.Decode(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusOK
	}
	c.AbortWithStatusJSON(status, Response{Code: code, Message: msg, Data: gin.H{}})
}
