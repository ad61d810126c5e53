// Package response builds the success and failure envelopes returned to callers.
package response

import (
	"errors"
	"net/http"

	"github.com/menta2k/plot2dataset/pkg/table"
	"github.com/menta2k/plot2dataset/pkg/types"
)

// Success packages parsed records together with the model text they came from
func Success(records []table.Record, rawText string) types.Result {
	if records == nil {
		records = []table.Record{}
	}
	return types.Result{Success: true, TableData: records, RawText: rawText}
}

// Failure turns any error into a failure envelope. The message is the
// error text with the category sentinel as its prefix.
func Failure(err error) types.Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return types.Result{Success: false, Error: msg}
}

// Assemble returns Failure(err) when err is set and Success otherwise.
// Nothing partial is ever returned.
func Assemble(records []table.Record, rawText string, err error) types.Result {
	if err != nil {
		return Failure(err)
	}
	return Success(records, rawText)
}

// StatusCode maps a failure to the HTTP status sent with its envelope
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInput), errors.Is(err, types.ErrFetch):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrDecode):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
