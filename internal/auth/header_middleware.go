package auth

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/planpoker/internal/models"
)

// Identity headers trusted when authentication is disabled.
const (
	HeaderUserID     = "X-User-Id"
	HeaderUserName   = "X-User-Name"
	HeaderUserAvatar = "X-User-Avatar"
)

// HeaderMiddleware trusts identity headers set by the client. Only for local
// development behind --no-auth.
func HeaderMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(HeaderUserID)
			if userID == "" {
				log.Warn().Str("path", r.URL.Path).Msg("Missing identity header")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			id := models.Identity{
				UserID:      userID,
				DisplayName: r.Header.Get(HeaderUserName),
				AvatarURL:   r.Header.Get(HeaderUserAvatar),
			}
			if id.DisplayName == "" {
				id.DisplayName = userID
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
