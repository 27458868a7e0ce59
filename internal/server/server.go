package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"crewline/internal/a2a"
	"crewline/internal/domain"
	"crewline/internal/engine"
	"crewline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"illegal_transition"`
	Message string         `json:"message" example:"invalid sprint state transition planned -> closed"`
	Details map[string]any `json:"details,omitempty"`
}

type actorKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Crewline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := strings.TrimSpace(r.Header.Get("X-Actor-Id"))
			if actor == "" {
				actor = "anonymous"
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
		})
	})
	hcfg := huma.DefaultConfig("Crewline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerOrgs(group, cfg.Engine)
	registerTeams(group, cfg.Engine)
	registerSprints(group, cfg.Engine)
	registerItems(group, cfg.Engine)
	registerEscalations(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerA2A(group)
	registerHooks(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func actorID(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "anonymous"
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var te engine.IllegalTransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusUnprocessableEntity, "illegal_transition", err.Error(), map[string]any{
			"from": te.From, "to": te.To,
		})
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	var ie engine.InvalidError
	if errors.As(err, &ie) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if isStorageFault(err) {
		return newAPIError(http.StatusServiceUnavailable, "unavailable", "storage unavailable", nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

// SQLite primary result codes signalling the store itself is unhealthy
// (busy, locked, ioerr, full, cantopen, notadb). Anything else from the
// driver is a plain internal error.
var storageFaultCodes = map[int]bool{
	5:  true,
	6:  true,
	10: true,
	13: true,
	14: true,
	26: true,
}

func isStorageFault(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return true
	}
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return storageFaultCodes[coded.Code()&0xff]
	}
	return false
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "illegal_transition"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Crewline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerOrgs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-org",
		Method:        http.MethodPost,
		Path:          "/orgs",
		Summary:       "Create organization",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateOrgRequest `json:"body"`
	}) (*struct {
		Body domain.Organization `json:"body"`
	}, error) {
		o, err := e.CreateOrganization(ctx, input.Body.Name, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Organization `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orgs",
		Method:      http.MethodGet,
		Path:        "/orgs",
		Summary:     "List organizations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Organization `json:"body"`
	}, error) {
		orgs, err := e.Repo.ListOrganizations(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Organization `json:"body"`
		}{Body: orgs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-org",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}",
		Summary:     "Get organization",
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body domain.Organization `json:"body"`
	}, error) {
		o, err := e.Repo.GetOrganization(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Organization `json:"body"`
		}{Body: o}, nil
	})
}

func registerTeams(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-team",
		Method:        http.MethodPost,
		Path:          "/teams",
		Summary:       "Create team",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateTeamRequest `json:"body"`
	}) (*struct {
		Body domain.Team `json:"body"`
	}, error) {
		t, err := e.CreateTeam(ctx, engine.TeamCreateOptions{
			OrgID:   input.Body.OrgID,
			Name:    input.Body.Name,
			Members: requestMembers(input.Body.Members),
			ActorID: actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Team `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-teams",
		Method:      http.MethodGet,
		Path:        "/teams",
		Summary:     "List teams",
	}, func(ctx context.Context, input *struct {
		OrgID string `query:"org_id"`
	}) (*struct {
		Body []domain.Team `json:"body"`
	}, error) {
		teams, err := e.Repo.ListTeams(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Team `json:"body"`
		}{Body: teams}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-team",
		Method:      http.MethodGet,
		Path:        "/teams/{team_id}",
		Summary:     "Get team",
	}, func(ctx context.Context, input *struct {
		TeamID string `path:"team_id"`
	}) (*struct {
		Body domain.Team `json:"body"`
	}, error) {
		t, err := e.Repo.GetTeam(ctx, input.TeamID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Team `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-team-members",
		Method:      http.MethodPut,
		Path:        "/teams/{team_id}/members",
		Summary:     "Replace team members",
	}, func(ctx context.Context, input *struct {
		TeamID string            `path:"team_id"`
		Body   SetMembersRequest `json:"body"`
	}) (*struct {
		Body domain.Team `json:"body"`
	}, error) {
		t, err := e.SetTeamMembers(ctx, input.TeamID, requestMembers(input.Body.Members), actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Team `json:"body"`
		}{Body: t}, nil
	})
}

func registerSprints(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-sprint",
		Method:        http.MethodPost,
		Path:          "/sprints",
		Summary:       "Create sprint",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateSprintRequest `json:"body"`
	}) (*struct {
		Body domain.Sprint `json:"body"`
	}, error) {
		opts := engine.SprintCreateOptions{
			TeamID:  input.Body.TeamID,
			Name:    input.Body.Name,
			ActorID: actorID(ctx),
		}
		if input.Body.BudgetScopeID != nil {
			opts.BudgetScopeID = *input.Body.BudgetScopeID
		}
		s, err := e.CreateSprint(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Sprint `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sprints",
		Method:      http.MethodGet,
		Path:        "/sprints",
		Summary:     "List sprints",
	}, func(ctx context.Context, input *struct {
		TeamID string `query:"team_id"`
		State  string `query:"state"`
	}) (*struct {
		Body []domain.Sprint `json:"body"`
	}, error) {
		sprints, err := e.Repo.ListSprints(ctx, repo.SprintFilters{TeamID: input.TeamID, State: input.State})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Sprint `json:"body"`
		}{Body: sprints}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-sprint",
		Method:      http.MethodPost,
		Path:        "/sprints/{sprint_id}/transition",
		Summary:     "Transition sprint state",
	}, func(ctx context.Context, input *struct {
		SprintID string                  `path:"sprint_id"`
		Body     TransitionSprintRequest `json:"body"`
	}) (*struct {
		Body domain.Sprint `json:"body"`
	}, error) {
		s, err := e.TransitionSprint(ctx, input.SprintID, input.Body.State, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Sprint `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sprint-report",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}/report",
		Summary:     "Sprint progress report",
	}, func(ctx context.Context, input *struct {
		SprintID string `path:"sprint_id"`
	}) (*struct {
		Body engine.SprintReport `json:"body"`
	}, error) {
		report, err := e.SprintReport(ctx, input.SprintID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SprintReport `json:"body"`
		}{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sprint-retrospective",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}/retrospective",
		Summary:     "Sprint retrospective",
	}, func(ctx context.Context, input *struct {
		SprintID string `path:"sprint_id"`
	}) (*struct {
		Body engine.SprintRetrospective `json:"body"`
	}, error) {
		retro, err := e.SprintRetrospective(ctx, input.SprintID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SprintRetrospective `json:"body"`
		}{Body: retro}, nil
	})
}

func registerItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-item",
		Method:        http.MethodPost,
		Path:          "/items",
		Summary:       "Create work item",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateWorkItemRequest `json:"body"`
	}) (*struct {
		Body domain.WorkItem `json:"body"`
	}, error) {
		opts := engine.WorkItemCreateOptions{
			SprintID:           input.Body.SprintID,
			Title:              input.Body.Title,
			AcceptanceCriteria: input.Body.AcceptanceCriteria,
			ExternalRefs:       input.Body.ExternalRefs,
			ActorID:            actorID(ctx),
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		if input.Body.AssigneeAgentID != nil {
			opts.AssigneeAgentID = *input.Body.AssigneeAgentID
		}
		w, err := e.CreateWorkItem(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkItem `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/items",
		Summary:     "List work items",
	}, func(ctx context.Context, input *struct {
		SprintID string `query:"sprint_id"`
		State    string `query:"state"`
		Assignee string `query:"assignee"`
	}) (*struct {
		Body []domain.WorkItem `json:"body"`
	}, error) {
		items, err := e.Repo.ListWorkItems(ctx, repo.WorkItemFilters{
			SprintID: input.SprintID,
			State:    input.State,
			Assignee: input.Assignee,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.WorkItem `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/items/{item_id}",
		Summary:     "Get work item with history",
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body domain.WorkItem `json:"body"`
	}, error) {
		w, err := e.GetWorkItem(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkItem `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-item",
		Method:      http.MethodPatch,
		Path:        "/items/{item_id}",
		Summary:     "Update work item",
	}, func(ctx context.Context, input *struct {
		ItemID string                `path:"item_id"`
		Body   UpdateWorkItemRequest `json:"body"`
	}) (*struct {
		Body domain.WorkItem `json:"body"`
	}, error) {
		opts := engine.WorkItemUpdateOptions{
			ID:                 input.ItemID,
			Description:        input.Body.Description,
			AssigneeAgentID:    input.Body.AssigneeAgentID,
			AcceptanceCriteria: input.Body.AcceptanceCriteria,
			ExternalRefs:       input.Body.ExternalRefs,
			ActorID:            actorID(ctx),
		}
		if input.Body.Title != nil {
			opts.Title = *input.Body.Title
		}
		if input.Body.State != nil {
			opts.State = *input.Body.State
		}
		w, err := e.UpdateWorkItem(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkItem `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-item-blocked",
		Method:      http.MethodPost,
		Path:        "/items/{item_id}/blocked",
		Summary:     "Report work item blocked",
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body domain.WorkItem `json:"body"`
	}, error) {
		w, err := e.ReportBlocked(ctx, input.ItemID, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkItem `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delegate-item",
		Method:        http.MethodPost,
		Path:          "/items/{item_id}/delegate",
		Summary:       "Delegate work item to an agent",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ItemID string          `path:"item_id"`
		Body   DelegateRequest `json:"body"`
	}) (*struct {
		Body domain.Delegation `json:"body"`
	}, error) {
		d, err := e.Delegate(ctx, engine.DelegateOptions{
			WorkItemID:  input.ItemID,
			FromAgentID: actorID(ctx),
			ToAgentID:   input.Body.ToAgentID,
			SessionKey:  input.Body.SessionKey,
			Isolated:    input.Body.Isolated,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Delegation `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "request-item-review",
		Method:        http.MethodPost,
		Path:          "/items/{item_id}/review",
		Summary:       "Request review of a work item",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ItemID string               `path:"item_id"`
		Body   RequestReviewRequest `json:"body"`
	}) (*struct {
		Body domain.Review `json:"body"`
	}, error) {
		rv, err := e.RequestReview(ctx, input.ItemID, input.Body.ReviewerAgentID, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Review `json:"body"`
		}{Body: rv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-item-verdict",
		Method:      http.MethodPost,
		Path:        "/items/{item_id}/verdict",
		Summary:     "Record review verdict",
	}, func(ctx context.Context, input *struct {
		ItemID string         `path:"item_id"`
		Body   VerdictRequest `json:"body"`
	}) (*struct {
		Body domain.Review `json:"body"`
	}, error) {
		opts := engine.VerdictOptions{
			WorkItemID:      input.ItemID,
			ReviewerAgentID: input.Body.ReviewerAgentID,
			Verdict:         input.Body.Verdict,
			Concerns:        input.Body.Concerns,
		}
		if input.Body.Feedback != nil {
			opts.Feedback = *input.Body.Feedback
		}
		rv, err := e.RecordVerdict(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Review `json:"body"`
		}{Body: rv}, nil
	})
}

func registerEscalations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-escalations",
		Method:      http.MethodGet,
		Path:        "/escalations",
		Summary:     "List open escalations",
	}, func(ctx context.Context, input *struct {
		TeamID   string `query:"team_id"`
		SprintID string `query:"sprint_id"`
	}) (*struct {
		Body []domain.Escalation `json:"body"`
	}, error) {
		open, err := e.ListOpenEscalations(ctx, input.TeamID, input.SprintID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Escalation `json:"body"`
		}{Body: open}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-escalation",
		Method:      http.MethodPost,
		Path:        "/escalations/{escalation_id}/resolve",
		Summary:     "Resolve escalation",
	}, func(ctx context.Context, input *struct {
		EscalationID string                   `path:"escalation_id"`
		Body         ResolveEscalationRequest `json:"body"`
	}) (*struct {
		Body domain.Escalation `json:"body"`
	}, error) {
		esc, err := e.ResolveEscalation(ctx, input.EscalationID, input.Body.Resolution, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Escalation `json:"body"`
		}{Body: esc}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List latest events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		TeamID     string `query:"team_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		evts, err := e.Repo.LatestEvents(ctx, limit, input.TeamID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: evts}, nil
	})
}

func registerA2A(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-a2a-message",
		Method:      http.MethodPost,
		Path:        "/a2a/validate",
		Summary:     "Validate an agent-to-agent message",
	}, func(ctx context.Context, input *struct {
		Body any `json:"body"`
	}) (*struct {
		Body a2a.Result `json:"body"`
	}, error) {
		return &struct {
			Body a2a.Result `json:"body"`
		}{Body: a2a.Validate(input.Body)}, nil
	})
}
