package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/threst22/pinnaclestore/api/responses"
	"github.com/threst22/pinnaclestore/api/validators"
	"github.com/threst22/pinnaclestore/internal/purchase"
	pkgerrors "github.com/threst22/pinnaclestore/pkg/errors"
	"github.com/threst22/pinnaclestore/pkg/logger"
)

type cartLineRequest struct {
	ItemID   uuid.UUID `json:"item_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,min=1"`
}

type checkoutRequest struct {
	AccountID uuid.UUID         `json:"account_id" validate:"required"`
	Lines     []cartLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// Checkout lets an admin redeem a cart for an account immediately, skipping
// the approval queue. The engine still enforces balance and stock.
func Checkout(engine purchase.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase engine unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		receipt, err := engine.Execute(r.Context(), purchase.ExecuteInput{
			AccountID: payload.AccountID,
			Lines:     toPurchaseLines(payload.Lines),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, receipt)
	}
}

func toPurchaseLines(lines []cartLineRequest) []purchase.Line {
	out := make([]purchase.Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, purchase.Line{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	return out
}
