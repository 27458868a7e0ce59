package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"crewline/internal/domain"
	"crewline/internal/engine"
)

// Inbound hooks translate external facts into engine operations. Webhook
// signature verification and body parsing belong to the caller; these
// endpoints take the already-extracted facts.

func registerHooks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "hook-subagent-ended",
		Method:      http.MethodPost,
		Path:        "/hooks/subagent-ended",
		Summary:     "Signal that a delegated agent session ended",
	}, func(ctx context.Context, input *struct {
		Body SubagentEndedRequest `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if input.Body.TargetSessionKey == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "target_session_key is required", nil)
		}
		status := "failed"
		if input.Body.Outcome == "ok" {
			status = "completed"
		}
		outcome := "session ended: " + input.Body.Outcome
		if input.Body.Reason != nil && *input.Body.Reason != "" {
			outcome += " (" + *input.Body.Reason + ")"
		}
		if err := e.CompleteDelegationBySession(ctx, input.Body.TargetSessionKey, status, outcome); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hook-pr-merged",
		Method:      http.MethodPost,
		Path:        "/hooks/pr-merged",
		Summary:     "Signal that a pull request was merged",
	}, func(ctx context.Context, input *struct {
		Body PRMergedRequest `json:"body"`
	}) (*struct {
		Body domain.WorkItem `json:"body"`
	}, error) {
		if input.Body.URL == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "url is required", nil)
		}
		w, err := e.MarkItemDoneByExternalRef(ctx, input.Body.URL, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkItem `json:"body"`
		}{Body: w}, nil
	})
}
