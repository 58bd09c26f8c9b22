package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Plan is one purchasable premium tier shown on the checkout page.
type Plan struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// DefaultPlans seed the checkout page when no plans are configured.
var DefaultPlans = []Plan{
	{Name: "Silver", Price: 4.99},
	{Name: "Gold", Price: 9.99},
}

// CheckoutConfig contains dynamic values exposed to the checkout frontend.
type CheckoutConfig struct {
	LoginPath string
	Plans     []Plan
	BaseURL   string
}

// ServeCheckoutConfig emits a JavaScript payload that hydrates
// window.__PREMIUM_CONFIG before checkout-client.js runs.
func ServeCheckoutConfig(contextGin *gin.Context, configuration CheckoutConfig) {
	baseURL := configuration.BaseURL
	if strings.TrimSpace(baseURL) == "" {
		scheme := forwardedProto(contextGin.Request)
		host := contextGin.Request.Host
		if host == "" {
			host = "localhost"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, host)
	}
	plans := configuration.Plans
	if len(plans) == 0 {
		plans = DefaultPlans
	}
	payload := struct {
		LoginPath string `json:"loginPath"`
		Plans     []Plan `json:"plans"`
		BaseURL   string `json:"baseUrl"`
	}{
		LoginPath: configuration.LoginPath,
		Plans:     plans,
		BaseURL:   baseURL,
	}

	encoded, encodeErr := json.Marshal(payload)
	if encodeErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "web.checkout_config.encode_failed",
		})
		return
	}

	script := fmt.Sprintf(`(function(){window.__PREMIUM_CONFIG=Object.freeze(%s);})();`, string(encoded))

	contextGin.Header("Content-Type", "application/javascript; charset=utf-8")
	contextGin.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
	contextGin.Header("X-Content-Type-Options", "nosniff")
	contextGin.String(http.StatusOK, script)
}

func forwardedProto(request *http.Request) string {
	if request == nil {
		return "https"
	}
	if headerValue := request.Header.Get("X-Forwarded-Proto"); headerValue != "" {
		return headerValue
	}
	if request.TLS != nil {
		return "https"
	}
	return "http"
}
