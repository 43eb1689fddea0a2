package middleware

import (
	"errors"
	"net/http"
	"slices"

	"github.com/nkiryanov/guildhall/internal/apperrors"
	"github.com/nkiryanov/guildhall/internal/handlers/render"
	"github.com/nkiryanov/guildhall/internal/handlers/resourcectx"
	"github.com/nkiryanov/guildhall/internal/handlers/userctx"
	"github.com/nkiryanov/guildhall/internal/models"
)

// Field compared with user id when CheckOwnership gets empty field
const DefaultOwnerField = "user.id"

// Allow only users with one of the roles. Has to run after Protect
func Authorize(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := userctx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Not authorized", http.StatusUnauthorized)
				return
			}

			if !slices.Contains(roles, user.Role) {
				render.ServiceError(w, "User role '"+string(user.Role)+"' is not authorized to access this route", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Loads resource the request is about, so CheckOwnership may use it
// Loader returning apperrors.ErrUserNotFound results in 404
type ResourceLoader func(r *http.Request) (resourcectx.Resource, error)

func LoadResource(load ResourceLoader, l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resource, err := load(r)
			switch {
			case err == nil:
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "Resource not found", http.StatusNotFound)
				return
			default:
				l.Error("failed to load resource", "uri", r.RequestURI, "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(resourcectx.New(r.Context(), resource)))
		})
	}
}

// Allow only owner of the loaded resource. Admins and moderators always pass
// field is dotted path inside the resource, DefaultOwnerField if empty
func CheckOwnership(field string) func(http.Handler) http.Handler {
	if field == "" {
		field = DefaultOwnerField
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := userctx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Not authorized", http.StatusUnauthorized)
				return
			}

			if user.IsStaff() {
				next.ServeHTTP(w, r)
				return
			}

			resource, ok := resourcectx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Not authorized to access this resource", http.StatusForbidden)
				return
			}

			owner, ok := resource.Lookup(field)
			if !ok || owner != user.ID.String() {
				render.ServiceError(w, "Not authorized to access this resource", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
