// Package authflow orchestrates the OAuth2 callback: token exchange, profile
// fetch, optional entitlement gating, optional membership mutation, optional
// webhook notification, and session persistence, as an ordered pipeline of
// named stages.
package authflow

import (
	"fmt"

	"golang.org/x/oauth2"

	"github.com/Dev-Aaron27/premium/internal/crm"
	"github.com/Dev-Aaron27/premium/internal/discord"
	"github.com/Dev-Aaron27/premium/internal/session"
)

// MutationPolicy controls whether a membership-mutation failure aborts the
// callback or is logged and swallowed.
type MutationPolicy string

const (
	// MutationBestEffort logs mutation failures and continues (default).
	MutationBestEffort MutationPolicy = "best-effort"
	// MutationAbort terminates the callback on mutation failure.
	MutationAbort MutationPolicy = "abort"
)

// ParseMutationPolicy validates a configured policy string.
func ParseMutationPolicy(raw string) (MutationPolicy, error) {
	switch MutationPolicy(raw) {
	case MutationBestEffort, MutationAbort:
		return MutationPolicy(raw), nil
	case "":
		return MutationBestEffort, nil
	default:
		return "", fmt.Errorf("flow.invalid_mutation_policy: %q", raw)
	}
}

// OutputMode selects the shape of the final success response. It is a
// deployment-time choice, not a runtime decision.
type OutputMode string

const (
	// OutputRedirect issues a 302 to the frontend with the profile encoded
	// as a query parameter.
	OutputRedirect OutputMode = "redirect"
	// OutputHTML renders a plain HTML success page.
	OutputHTML OutputMode = "html"
	// OutputJSON returns a JSON summary of the authenticated user.
	OutputJSON OutputMode = "json"
)

// ParseOutputMode validates a configured output mode string.
func ParseOutputMode(raw string) (OutputMode, error) {
	switch OutputMode(raw) {
	case OutputRedirect, OutputHTML, OutputJSON:
		return OutputMode(raw), nil
	case "":
		return OutputRedirect, nil
	default:
		return "", fmt.Errorf("flow.invalid_output_mode: %q", raw)
	}
}

// MembershipConfig enables the guild-join mutation stage. A nil value
// disables the stage.
type MembershipConfig struct {
	BotToken string
	GuildID  string
	RoleID   string
}

// Config wires the orchestrator's collaborators and policies. Optional
// collaborators (CRM, Notifier, Membership) disable their pipeline stage
// when nil.
type Config struct {
	OAuth          oauth2.Config
	Provider       *discord.Client
	CRM            *crm.Client
	Notifier       *discord.Notifier
	Membership     *MembershipConfig
	MutationPolicy MutationPolicy
	OutputMode     OutputMode
	FrontendURL    string
	Sessions       session.Store
	Cookie         session.CookieConfig
}
