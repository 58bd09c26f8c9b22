package authflow

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-uuid"
	"go.uber.org/zap"

	"github.com/Dev-Aaron27/premium/internal/discord"
	"github.com/Dev-Aaron27/premium/internal/session"
)

// Stage names, logged with every stage outcome.
const (
	stageExtractCode        = "extract_code"
	stageTokenExchange      = "token_exchange"
	stageProfileFetch       = "profile_fetch"
	stageEntitlementCheck   = "entitlement_check"
	stageMembershipMutation = "membership_mutation"
	stageNotification       = "notification"
	stageSessionPersist     = "session_persist"
)

type stagePolicy string

const (
	policyCritical   stagePolicy = "critical"
	policyBestEffort stagePolicy = "best-effort"
)

type stageOutcome int

const (
	outcomeContinue stageOutcome = iota
	// outcomeHalt short-circuits the pipeline with a "not subscribed"
	// response; remaining stages never run.
	outcomeHalt
)

type callbackStage struct {
	name    string
	policy  stagePolicy
	enabled bool
	run     func(ctx context.Context) (stageOutcome, error)
}

type callbackState struct {
	token         discord.TokenResponse
	profile       discord.UserProfile
	sessionToken  string
	sessionExpiry time.Time
}

// Result describes a completed callback. Gated means the entitlement check
// failed affirmatively and the caller must answer "not subscribed".
type Result struct {
	Subscribed    bool
	Gated         bool
	Profile       discord.UserProfile
	SessionToken  string
	SessionExpiry time.Time
}

// Orchestrator executes the callback stages strictly in order; stage N+1
// never begins before stage N's response is received.
type Orchestrator struct {
	config       Config
	logger       *zap.Logger
	metrics      MetricsRecorder
	newSessionID func() (string, error)
}

// NewOrchestrator wires an orchestrator from its configuration.
func NewOrchestrator(configuration Config, logger *zap.Logger, metrics MetricsRecorder) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewCounterMetrics()
	}
	return &Orchestrator{
		config:       configuration,
		logger:       logger,
		metrics:      metrics,
		newSessionID: uuid.GenerateUUID,
	}
}

// LoginURL builds the provider's authorization URL from the static
// configuration.
func (orchestrator *Orchestrator) LoginURL() string {
	return orchestrator.config.OAuth.AuthCodeURL("")
}

// HandleCallback runs the callback pipeline for one authorization code.
func (orchestrator *Orchestrator) HandleCallback(ctx context.Context, authorizationCode string) (Result, *FlowError) {
	if strings.TrimSpace(authorizationCode) == "" {
		orchestrator.metrics.Increment(metricCallbackFailure)
		return Result{}, &FlowError{
			Stage:  stageExtractCode,
			Status: http.StatusBadRequest,
			Code:   CodeMissingAuthorizationCode,
		}
	}

	state := &callbackState{}
	for _, stage := range orchestrator.stages(authorizationCode, state) {
		if !stage.enabled {
			continue
		}
		outcome, runErr := stage.run(ctx)
		if runErr != nil {
			if stage.policy == policyBestEffort {
				orchestrator.metrics.Increment(metricBestEffortFailure + stage.name)
				orchestrator.logger.Warn("best-effort stage failed",
					zap.String("code", "flow.stage.best_effort_failure"),
					zap.String("stage", stage.name),
					zap.Error(runErr))
				continue
			}
			orchestrator.metrics.Increment(metricCallbackFailure)
			flowError := orchestrator.terminalError(stage.name, runErr)
			orchestrator.logger.Error("callback stage failed",
				zap.String("code", flowError.Code),
				zap.String("stage", stage.name),
				zap.Error(runErr))
			return Result{}, flowError
		}
		if outcome == outcomeHalt {
			orchestrator.metrics.Increment(metricCallbackNotSubscribed)
			return Result{Gated: true, Profile: state.profile}, nil
		}
	}

	orchestrator.metrics.Increment(metricCallbackSuccess)
	return Result{
		Subscribed:    true,
		Profile:       state.profile,
		SessionToken:  state.sessionToken,
		SessionExpiry: state.sessionExpiry,
	}, nil
}

func (orchestrator *Orchestrator) stages(authorizationCode string, state *callbackState) []callbackStage {
	configuration := orchestrator.config

	mutationPolicy := policyBestEffort
	if configuration.MutationPolicy == MutationAbort {
		mutationPolicy = policyCritical
	}

	return []callbackStage{
		{
			name:    stageTokenExchange,
			policy:  policyCritical,
			enabled: true,
			run: func(ctx context.Context) (stageOutcome, error) {
				token, exchangeErr := configuration.Provider.ExchangeCode(ctx, authorizationCode)
				if exchangeErr != nil {
					return outcomeContinue, exchangeErr
				}
				state.token = token
				return outcomeContinue, nil
			},
		},
		{
			name:    stageProfileFetch,
			policy:  policyCritical,
			enabled: true,
			run: func(ctx context.Context) (stageOutcome, error) {
				profile, fetchErr := configuration.Provider.FetchProfile(ctx, state.token.AccessToken)
				if fetchErr != nil {
					return outcomeContinue, fetchErr
				}
				state.profile = profile
				return outcomeContinue, nil
			},
		},
		{
			name:    stageEntitlementCheck,
			policy:  policyCritical,
			enabled: configuration.CRM != nil,
			run: func(ctx context.Context) (stageOutcome, error) {
				subscribed, lookupErr := configuration.CRM.LookupSubscription(ctx, state.profile.Email)
				if lookupErr != nil {
					// Lookup failure is "not entitled", never a 500.
					orchestrator.logger.Warn("entitlement lookup failed",
						zap.String("code", "flow.entitlement_lookup_failed"),
						zap.Error(lookupErr))
					subscribed = false
				}
				if !subscribed {
					return outcomeHalt, nil
				}
				return outcomeContinue, nil
			},
		},
		{
			name:    stageMembershipMutation,
			policy:  mutationPolicy,
			enabled: configuration.Membership != nil,
			run: func(ctx context.Context) (stageOutcome, error) {
				membership := configuration.Membership
				joinErr := configuration.Provider.JoinGuild(ctx,
					membership.BotToken, membership.GuildID, membership.RoleID,
					state.profile.ID, state.token.AccessToken)
				return outcomeContinue, joinErr
			},
		},
		{
			name:    stageNotification,
			policy:  policyBestEffort,
			enabled: configuration.Notifier != nil,
			run: func(ctx context.Context) (stageOutcome, error) {
				sendErr := configuration.Notifier.Send(ctx, discord.Notification{
					Title:   "New Premium Login",
					Profile: state.profile,
				})
				return outcomeContinue, sendErr
			},
		},
		{
			name:    stageSessionPersist,
			policy:  policyCritical,
			enabled: configuration.Sessions != nil,
			run: func(ctx context.Context) (stageOutcome, error) {
				sessionID, idErr := orchestrator.newSessionID()
				if idErr != nil {
					return outcomeContinue, idErr
				}
				issuedAt := time.Now().UTC()
				putErr := configuration.Sessions.Put(ctx, session.Record{
					SessionID:    sessionID,
					Profile:      state.profile,
					IssuedAtUnix: issuedAt.Unix(),
					ExpiresUnix:  issuedAt.Add(configuration.Cookie.TTL).Unix(),
				})
				if putErr != nil {
					return outcomeContinue, putErr
				}
				signedToken, expiresAt, mintErr := session.MintCookieToken(configuration.Cookie, sessionID)
				if mintErr != nil {
					return outcomeContinue, mintErr
				}
				state.sessionToken = signedToken
				state.sessionExpiry = expiresAt
				return outcomeContinue, nil
			},
		},
	}
}

func (orchestrator *Orchestrator) terminalError(stageName string, stageErr error) *FlowError {
	switch stageName {
	case stageTokenExchange:
		var providerError *discord.ProviderError
		if errors.As(stageErr, &providerError) {
			return &FlowError{
				Stage:  stageName,
				Status: http.StatusBadRequest,
				Code:   CodeTokenExchangeFailed,
				Body:   providerError.Body,
				Err:    stageErr,
			}
		}
		return &FlowError{Stage: stageName, Status: http.StatusInternalServerError, Code: CodeTokenExchangeFailed, Err: stageErr}
	case stageProfileFetch:
		return &FlowError{Stage: stageName, Status: http.StatusInternalServerError, Code: CodeProfileFetchFailed, Err: stageErr}
	case stageMembershipMutation:
		return &FlowError{Stage: stageName, Status: http.StatusInternalServerError, Code: CodeMutationFailed, Err: stageErr}
	default:
		return &FlowError{Stage: stageName, Status: http.StatusInternalServerError, Code: CodeSessionPersistFailed, Err: stageErr}
	}
}
