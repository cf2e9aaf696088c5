package controllers

import (
	"net/http"

	"github.com/angelmondragon/dealroom-backend/api/responses"
	"github.com/angelmondragon/dealroom-backend/internal/feepolicies"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
)

// ListActiveFeePolicies returns the fee policies currently eligible for settlements.
func ListActiveFeePolicies(svc feepolicies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fee policy service unavailable"))
			return
		}
		policies, err := svc.ListActive(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, policies)
	}
}
