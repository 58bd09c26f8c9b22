package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Dev-Aaron27/premium/internal/session"
)

// HandleWhoAmI resolves the session-stored profile for the checkout frontend.
func HandleWhoAmI(sessions session.Store, cookieConfig session.CookieConfig, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessions == nil {
		panic("session store is required")
	}

	return func(contextGin *gin.Context) {
		sessionID, cookieErr := session.SessionIDFromRequest(cookieConfig, contextGin.Request)
		if cookieErr != nil {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		record, getErr := sessions.Get(contextGin.Request.Context(), sessionID)
		if getErr != nil {
			if errors.Is(getErr, session.ErrSessionNotFound) || errors.Is(getErr, session.ErrSessionExpired) {
				contextGin.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			logger.Error("session lookup error",
				zap.String("code", "api.me.session_error"),
				zap.Error(getErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		contextGin.JSON(http.StatusOK, gin.H{
			"id":         record.Profile.ID,
			"username":   record.Profile.Username,
			"email":      record.Profile.Email,
			"avatar_url": record.Profile.AvatarURL(),
		})
	}
}
