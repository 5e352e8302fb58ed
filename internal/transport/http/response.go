package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/wallet-ledger/internal/model"
)

const messageSuccess = "Success"

var errBadRequest = errors.New("bad request")

// Response is the envelope every endpoint answers with.
type Response struct {
	TraceID string      `json:"trace_id"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{TraceID: traceID(c), Message: messageSuccess, Data: data})
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, Response{TraceID: traceID(c), Message: msg})
}

// statusFor maps the ledger error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrSelfTransfer):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrWalletNotFound),
		errors.Is(err, model.ErrTransferNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrStorageConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrInsufficientBalance),
		errors.Is(err, model.ErrWalletInactive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
