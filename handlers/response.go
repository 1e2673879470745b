package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cryptofolio/ledger"
)

// Application result codes carried in every response envelope alongside the
// HTTP status.
const (
	CodeOK           = 0
	CodeValidation   = 1000
	CodeUnauthorized = 1001
	CodeNotFound     = 1002
	CodeConflict     = 1003
	CodeUpstream     = 3000
)

func respond(c *gin.Context, status, code int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
		"data":    data,
	})
}

func ok(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, CodeOK, "ok", data)
}

func created(c *gin.Context, data interface{}) {
	respond(c, http.StatusCreated, CodeOK, "created", data)
}

func badRequest(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, CodeValidation, message, nil)
}

func notFound(c *gin.Context, message string) {
	respond(c, http.StatusNotFound, CodeNotFound, message, nil)
}

func internalError(c *gin.Context, message string) {
	respond(c, http.StatusInternalServerError, CodeUpstream, message, nil)
}

// ledgerError maps the ledger's sentinel outcomes onto the envelope.
func ledgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		badRequest(c, err.Error())
	case errors.Is(err, ledger.ErrPriceUnavailable):
		badRequest(c, err.Error())
	case errors.Is(err, ledger.ErrInsufficientQuantity):
		respond(c, http.StatusBadRequest, CodeUnauthorized, err.Error(), nil)
	case errors.Is(err, ledger.ErrHoldingNotFound), errors.Is(err, ledger.ErrNotFound):
		notFound(c, err.Error())
	case errors.Is(err, ledger.ErrDuplicate):
		respond(c, http.StatusConflict, CodeConflict, err.Error(), nil)
	default:
		internalError(c, "internal error")
	}
}
