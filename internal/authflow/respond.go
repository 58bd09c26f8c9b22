package authflow

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/Dev-Aaron27/premium/internal/discord"
)

const notSubscribedMessage = "Please subscribe to claim premium."

func respondNotSubscribed(contextGin *gin.Context) {
	contextGin.JSON(http.StatusOK, gin.H{
		"subscribed": false,
		"message":    notSubscribedMessage,
	})
}

func respondSuccess(contextGin *gin.Context, configuration Config, result Result) {
	switch configuration.OutputMode {
	case OutputHTML:
		contextGin.Data(http.StatusOK, "text/html; charset=utf-8", successPage(result.Profile))
	case OutputJSON:
		contextGin.JSON(http.StatusOK, gin.H{
			"subscribed": true,
			"id":         result.Profile.ID,
			"username":   result.Profile.Username,
			"email":      result.Profile.Email,
			"avatar_url": result.Profile.AvatarURL(),
		})
	default:
		contextGin.Redirect(http.StatusFound, redirectTarget(configuration.FrontendURL, result.Profile))
	}
}

// redirectTarget embeds the profile as a base64 query parameter on the
// frontend URL; without a frontend base it falls back to the legacy
// logged_in marker.
func redirectTarget(frontendURL string, profile discord.UserProfile) string {
	if frontendURL == "" {
		return "/?logged_in=1"
	}
	encoded, encodeErr := json.Marshal(profile)
	if encodeErr != nil {
		return frontendURL + "?logged_in=1"
	}
	target, parseErr := url.Parse(frontendURL)
	if parseErr != nil {
		return frontendURL + "?logged_in=1"
	}
	query := target.Query()
	query.Set("token", base64.URLEncoding.EncodeToString(encoded))
	target.RawQuery = query.Encode()
	return target.String()
}

func successPage(profile discord.UserProfile) []byte {
	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>Premium</title></head>
<body>
<h1>Welcome, %s!</h1>
<p>You are signed in. You can close this window.</p>
</body>
</html>
`, html.EscapeString(profile.Username))
	return []byte(page)
}
