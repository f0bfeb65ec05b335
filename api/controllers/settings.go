package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/threst22/pinnaclestore/api/responses"
	"github.com/threst22/pinnaclestore/api/validators"
	"github.com/threst22/pinnaclestore/internal/settings"
	"github.com/threst22/pinnaclestore/pkg/enums"
	pkgerrors "github.com/threst22/pinnaclestore/pkg/errors"
	"github.com/threst22/pinnaclestore/pkg/logger"
)

type updateSettingsRequest struct {
	Theme            *string          `json:"theme,omitempty"`
	LogoURL          *string          `json:"logo_url,omitempty"`
	InflationPercent *decimal.Decimal `json:"inflation_percent,omitempty"`
	ExpectedVersion  int              `json:"expected_version" validate:"required,min=1"`
}

// SettingsGet returns the storefront settings record, version included.
func SettingsGet(svc settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settings service unavailable"))
			return
		}

		record, err := svc.Get(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// SettingsUpdate patches the settings record behind a version guard. An
// inflation change reprices the whole catalog in the same transaction.
func SettingsUpdate(svc settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settings service unavailable"))
			return
		}

		var payload updateSettingsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := settings.UpdateInput{
			LogoURL:          payload.LogoURL,
			InflationPercent: payload.InflationPercent,
			ExpectedVersion:  payload.ExpectedVersion,
		}
		if payload.Theme != nil {
			theme := enums.Theme(*payload.Theme)
			input.Theme = &theme
		}

		record, err := svc.Update(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}
