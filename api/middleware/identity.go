package middleware

import (
	"net/http"

	"github.com/sekolahku/settlement-backend/pkg/logger"
)

const (
	studentIDHeader = "X-Student-Id"
	actorRoleHeader = "X-Actor-Role"
)

// RoleAdmin marks back-office staff allowed on the admin surface.
const RoleAdmin = "admin"

// Identity lifts the caller identity the edge proxy stamped onto the
// request into the context. The proxy authenticates; this layer only
// propagates.
func Identity(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if studentID := r.Header.Get(studentIDHeader); studentID != "" {
				ctx = WithStudentID(ctx, studentID)
				if logg != nil {
					ctx = logg.WithStudentID(ctx, studentID)
				}
			}
			if role := r.Header.Get(actorRoleHeader); role != "" {
				ctx = WithRole(ctx, role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
