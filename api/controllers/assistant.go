package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/coachcredits-backend/api/middleware"
	"github.com/angelmondragon/coachcredits-backend/api/responses"
	"github.com/angelmondragon/coachcredits-backend/api/validators"
	"github.com/angelmondragon/coachcredits-backend/internal/assistant"
	"github.com/angelmondragon/coachcredits-backend/internal/credits"
	"github.com/angelmondragon/coachcredits-backend/internal/quota"
	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
)

const (
	assistantUsageDescription = "Coaching assistant message"
	relatedChatSession        = "chat_session"
)

type meteredRunner interface {
	Run(ctx context.Context, principal quota.Principal, description string, related *credits.RelatedEntity, action quota.Action) (quota.Settlement, error)
}

type assistantMessageRequest struct {
	SessionID string              `json:"session_id" validate:"omitempty,max=128"`
	Messages  []assistant.Message `json:"messages" validate:"required,min=1,max=50,dive"`
}

// related ties the usage row to the chat session when the client names one.
func (r assistantMessageRequest) related() *credits.RelatedEntity {
	id := strings.TrimSpace(r.SessionID)
	if id == "" {
		return nil
	}
	return &credits.RelatedEntity{Type: relatedChatSession, ID: id}
}

type assistantMessageResponse struct {
	Reply   *assistant.Reply `json:"reply"`
	Billing quota.Settlement `json:"billing"`
}

// AssistantMessage runs one LLM completion behind the quota gate and charges a
// single credit when the reply is delivered.
func AssistantMessage(gate meteredRunner, resolver PrincipalResolver, completer assistant.Completer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if completer == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "assistant unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req assistantMessageRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		principal, err := resolver.Resolve(ctx, userID, middleware.RoleFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var reply *assistant.Reply
		settlement, err := gate.Run(ctx, principal, assistantUsageDescription, req.related(), func(actionCtx context.Context) error {
			out, completeErr := completer.Complete(actionCtx, userID, req.Messages)
			if completeErr != nil {
				return completeErr
			}
			reply = out
			return nil
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, assistantMessageResponse{Reply: reply, Billing: settlement})
	}
}
