package read

import (
	"context"
	"errors"

	"github.com/pithecene-io/opcda/opc"
	"github.com/pithecene-io/opcda/resolve"
	"github.com/pithecene-io/opcda/unified"
)

// Classify returns the unified record for one slot. A read item is
// classified by its quality code; a failed item by its error.
func Classify(it Item) unified.Error {
	if it.Err == nil {
		return unified.FromQuality(it.Record.Quality, it.Record.ID)
	}
	return FromError(it.Err, it.Record.ID)
}

// FromError maps a client or server error to a system unified record.
func FromError(err error, source string) unified.Error {
	cat, msg := categorize(err)
	return unified.NewSystemError(unified.SeverityError, cat, msg, err.Error(), source)
}

func categorize(err error) (unified.Category, string) {
	switch {
	case errors.Is(err, resolve.ErrUnresolved):
		return unified.CategoryTag, "Item identifier unresolved"
	case errors.Is(err, opc.ErrUnknownItemID), errors.Is(err, opc.ErrInvalidItemID):
		return unified.CategoryTag, "Unknown item"
	case errors.Is(err, opc.ErrBadRights):
		return unified.CategoryPermission, "Access denied"
	case errors.Is(err, opc.ErrInvalidHandle):
		return unified.CategoryInternal, "Invalid handle"
	case errors.Is(err, opc.ErrNoInterface), errors.Is(err, opc.ErrNotImpl):
		return unified.CategoryConfiguration, "Capability unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return unified.CategoryTimeout, "Timed out"
	default:
		return unified.CategoryCommunication, "Server call failed"
	}
}
