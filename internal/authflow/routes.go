package authflow

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Dev-Aaron27/premium/internal/session"
)

// MountAuthRoutes registers /auth/login, /auth/callback and /auth/logout.
func MountAuthRoutes(router gin.IRouter, orchestrator *Orchestrator) {
	router.GET("/auth/login", func(contextGin *gin.Context) {
		contextGin.Redirect(http.StatusFound, orchestrator.LoginURL())
	})

	router.GET("/auth/callback", func(contextGin *gin.Context) {
		authorizationCode := contextGin.Query("code")
		result, flowError := orchestrator.HandleCallback(contextGin.Request.Context(), authorizationCode)
		if flowError != nil {
			if len(flowError.Body) > 0 {
				contextGin.Data(flowError.Status, "application/json", flowError.Body)
				return
			}
			contextGin.JSON(flowError.Status, gin.H{"error": flowError.Code})
			return
		}
		if result.Gated {
			respondNotSubscribed(contextGin)
			return
		}
		if result.SessionToken != "" {
			session.WriteCookie(contextGin, orchestrator.config.Cookie, result.SessionToken, result.SessionExpiry)
		}
		respondSuccess(contextGin, orchestrator.config, result)
	})

	router.GET("/auth/logout", func(contextGin *gin.Context) {
		sessionID, readErr := session.SessionIDFromRequest(orchestrator.config.Cookie, contextGin.Request)
		if readErr == nil {
			if deleteErr := orchestrator.config.Sessions.Delete(contextGin.Request.Context(), sessionID); deleteErr != nil {
				orchestrator.logger.Warn("session delete failed on logout",
					zap.String("code", "flow.logout.delete_failed"),
					zap.Error(deleteErr))
			}
		}
		session.ClearCookie(contextGin, orchestrator.config.Cookie)
		target := orchestrator.config.FrontendURL
		if target == "" {
			target = "/"
		}
		contextGin.Redirect(http.StatusFound, target)
	})
}
