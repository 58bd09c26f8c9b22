package payment

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Dev-Aaron27/premium/internal/discord"
	"github.com/Dev-Aaron27/premium/internal/session"
)

// Error codes surfaced by the payment routes.
const (
	CodeInvalidRequest    = "payment.invalid_request"
	CodeInvalidPrice      = "payment.invalid_price"
	CodeMissingOrderToken = "payment.missing_order_token"
	CodeSessionRequired   = "payment.session_required"
	CodeOrderCreateFailed = "payment.order_create_failed"
	CodeCaptureFailed     = "payment.capture_failed"
)

// RoutesConfig wires the payment routes' collaborators. Notifier is
// optional; capture succeeds without it.
type RoutesConfig struct {
	Client   *Client
	Sessions session.Store
	Cookie   session.CookieConfig
	Notifier *discord.Notifier
}

// MountPaymentRoutes registers /api/create-order and /api/capture-order.
func MountPaymentRoutes(router gin.IRouter, configuration RoutesConfig, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router.POST("/api/create-order", func(contextGin *gin.Context) {
		var inbound struct {
			PlanName string  `json:"planName"`
			Price    float64 `json:"price"`
		}
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": CodeInvalidRequest})
			return
		}
		if inbound.Price <= 0 || math.IsInf(inbound.Price, 0) || math.IsNaN(inbound.Price) {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": CodeInvalidPrice})
			return
		}

		baseURL := requestBaseURL(contextGin.Request)
		orderDescriptor, createErr := configuration.Client.CreateOrder(contextGin.Request.Context(),
			inbound.PlanName, inbound.Price,
			baseURL+"/api/capture-order", baseURL+"/?cancelled=1")
		if createErr != nil {
			logger.Error("order creation failed",
				zap.String("code", CodeOrderCreateFailed),
				zap.String("plan", inbound.PlanName),
				zap.Error(createErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": CodeOrderCreateFailed})
			return
		}
		contextGin.Data(http.StatusOK, "application/json", orderDescriptor)
	})

	router.GET("/api/capture-order", func(contextGin *gin.Context) {
		orderToken := contextGin.Query("token")
		if orderToken == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": CodeMissingOrderToken})
			return
		}

		// The notification needs the session user; capture is refused
		// without an authenticated session rather than crashing later.
		sessionID, cookieErr := session.SessionIDFromRequest(configuration.Cookie, contextGin.Request)
		if cookieErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": CodeSessionRequired})
			return
		}
		record, getErr := configuration.Sessions.Get(contextGin.Request.Context(), sessionID)
		if getErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": CodeSessionRequired})
			return
		}

		captureResult, captureErr := configuration.Client.CaptureOrder(contextGin.Request.Context(), orderToken)
		if captureErr != nil {
			logger.Error("order capture failed",
				zap.String("code", CodeCaptureFailed),
				zap.Error(captureErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": CodeCaptureFailed})
			return
		}

		if configuration.Notifier != nil {
			sendErr := configuration.Notifier.Send(contextGin.Request.Context(), discord.Notification{
				Title:    "New Premium Subscription",
				Profile:  record.Profile,
				PlanName: captureResult.PlanName,
				Price:    captureResult.Amount,
			})
			if sendErr != nil {
				logger.Warn("purchase notification failed",
					zap.String("code", "payment.notification_failed"),
					zap.Error(sendErr))
			}
		}

		contextGin.Redirect(http.StatusFound, "/?success=1")
	})
}

func requestBaseURL(request *http.Request) string {
	scheme := "http"
	if request.TLS != nil {
		scheme = "https"
	}
	if forwarded := request.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	host := request.Host
	if host == "" {
		host = "localhost"
	}
	return scheme + "://" + host
}
