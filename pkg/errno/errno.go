package errno

import "errors"

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// WithMessage keeps the code and replaces the message.
func (e Errno) WithMessage(msg string) Errno {
	return Errno{Code: e.Code, Message: msg}
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, typed.Message
	}
	var ptr *Errno
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, ptr.Message
	}
	return InternalServerError.Code, err.Error()
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrStore            = Errno{Code: 10004, Message: "Event store error"}
)

// Withdrawal Errors (20300+)
var (
	ErrWithdrawalNotFound  = Errno{Code: 20301, Message: "Withdrawal not found"}
	ErrDuplicateWithdrawal = Errno{Code: 20302, Message: "Withdrawal already accepted"}
	ErrInvalidWithdrawal   = Errno{Code: 20303, Message: "Invalid withdrawal request"}
	ErrInvalidWithdrawalID = Errno{Code: 20304, Message: "Withdrawal id must be a positive integer"}
)
