package controllers

import (
	"net/http"

	"github.com/sekolahku/settlement-backend/api/responses"
	"github.com/sekolahku/settlement-backend/internal/requests"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
	"github.com/sekolahku/settlement-backend/pkg/logger"
)

// ListMyRequests returns the calling student's billing lines, newest first.
// Overdue is derived at read time from the due date.
func ListMyRequests(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}

		studentID, err := callerStudentID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		views, err := svc.ListStudentRequests(ctx, studentID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, views)
	}
}
