package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"baseline/internal/domain"
	"baseline/internal/engine"
	"baseline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"state_conflict"`
	Message string         `json:"message" example:"version is locked pending approval"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Baseline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are bad requests, 422 is
			// reserved for state machine refusals.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Baseline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerMembers(group, cfg.Engine)
	registerArtifacts(group, cfg.Engine)
	registerChanges(group, cfg.Engine)
	registerBoard(group, cfg.Engine)
	registerAudit(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
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

// handleError maps engine error types onto the HTTP surface: validation
// 400, permission 403, not-found 404, conflict 409, state 422.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field})
	}
	var pe engine.PermissionError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", "not found", nil)
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	var se engine.StateError
	if errors.As(err, &se) {
		return newAPIError(http.StatusUnprocessableEntity, "state_conflict", err.Error(), map[string]any{"op": se.Op})
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
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
		return "state_conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
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
    <title>Baseline API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
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

func registerDevAuth(api huma.API, auth AuthConfig) {
	if !auth.EnableDevLogin {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Issue a development token",
	}, func(ctx context.Context, input *struct {
		Body struct {
			ActorID string `json:"actor_id"`
		} `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := issueJWT(input.Body.ActorID, auth.JWTSecret, 24*time.Hour, time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"token": token}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		p, err := e.InitProject(ctx, input.Body.ID, input.Body.Name, desc, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "grant-member",
		Method:        http.MethodPut,
		Path:          "/projects/{project_id}/members",
		Summary:       "Grant or update a member",
		DefaultStatus: http.StatusOK,
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      GrantMemberRequest `json:"body"`
	}) (*struct {
		Body MemberResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		role, ok := domain.ValidRole(input.Body.Role)
		if !ok {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown role", nil)
		}
		m, err := e.GrantMember(ctx, input.ProjectID, actorID, input.Body.ActorID, role, input.Body.IsApprover)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberResponse `json:"body"`
		}{Body: memberResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/members",
		Summary:     "List members",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []MemberResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListMembers(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []MemberResponse `json:"body"`
		}{Body: mapMembers(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-member",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/members/{actor_id}",
		Summary:       "Remove a member",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ActorID   string `path:"actor_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveMember(ctx, input.ProjectID, actorID, input.ActorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerArtifacts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-artifact",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/artifacts",
		Summary:       "Create an artifact version",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		Body      CreateArtifactRequest `json:"body"`
	}) (*struct {
		Body ArtifactResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateArtifact(ctx, engine.CreateArtifactOptions{
			ProjectID:         input.ProjectID,
			Type:              input.Body.Type,
			Title:             input.Body.Title,
			Content:           input.Body.Content,
			ContentStructured: input.Body.ContentStructured,
			ActorID:           actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArtifactResponse `json:"body"`
		}{Body: artifactResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-artifacts",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/artifacts",
		Summary:     "List artifacts",
	}, func(ctx context.Context, input *struct {
		ProjectID   string `path:"project_id"`
		Type        string `query:"type"`
		Status      string `query:"status"`
		CurrentOnly bool   `query:"current_only"`
		Limit       int    `query:"limit"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body []ArtifactResponse `json:"body"`
	}, error) {
		f := repo.ArtifactFilters{
			ProjectID:   input.ProjectID,
			Type:        input.Type,
			Status:      input.Status,
			CurrentOnly: input.CurrentOnly,
			Limit:       input.Limit,
		}
		if input.Cursor != "" {
			createdAt, id, ok := strings.Cut(input.Cursor, "|")
			if !ok {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "malformed cursor", nil)
			}
			f.CursorCreatedAt, f.CursorID = createdAt, id
		}
		items, err := e.Repo.ListArtifacts(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ArtifactResponse `json:"body"`
		}{Body: mapArtifacts(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-artifact",
		Method:      http.MethodGet,
		Path:        "/artifacts/{artifact_id}",
		Summary:     "Get artifact version",
	}, func(ctx context.Context, input *struct {
		ArtifactID string `path:"artifact_id"`
	}) (*struct {
		Body ArtifactResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetArtifact(ctx, input.ArtifactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArtifactResponse `json:"body"`
		}{Body: artifactResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-artifact",
		Method:      http.MethodPatch,
		Path:        "/artifacts/{artifact_id}",
		Summary:     "Edit the current draft",
	}, func(ctx context.Context, input *struct {
		ArtifactID string                `path:"artifact_id"`
		Body       UpdateArtifactRequest `json:"body"`
	}) (*struct {
		Body ArtifactResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UpdateContent(ctx, input.ArtifactID, actorID, engine.ContentPatch{
			Title:             input.Body.Title,
			Content:           input.Body.Content,
			ContentStructured: input.Body.ContentStructured,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArtifactResponse `json:"body"`
		}{Body: artifactResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-artifact",
		Method:      http.MethodDelete,
		Path:        "/artifacts/{artifact_id}",
		Summary:     "Delete a draft version",
	}, func(ctx context.Context, input *struct {
		ArtifactID string `path:"artifact_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SoftDeleteArtifact(ctx, input.ArtifactID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	type artifactAction func(ctx context.Context, artifactID, actorID string) (domain.Artifact, error)
	registerAction := func(opID, urlPath, summary string, do artifactAction) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        urlPath,
			Summary:     summary,
		}, func(ctx context.Context, input *struct {
			ArtifactID string `path:"artifact_id"`
		}) (*struct {
			Body ArtifactResponse `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			a, err := do(ctx, input.ArtifactID, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body ArtifactResponse `json:"body"`
			}{Body: artifactResponse(a)}, nil
		})
	}

	registerAction("submit-artifact", "/artifacts/{artifact_id}/submit", "Submit for approval", e.Submit)
	registerAction("approve-artifact", "/artifacts/{artifact_id}/approve", "Approve and baseline", e.Approve)

	huma.Register(api, huma.Operation{
		OperationID: "request-changes",
		Method:      http.MethodPost,
		Path:        "/artifacts/{artifact_id}/request-changes",
		Summary:     "Send back for changes",
	}, func(ctx context.Context, input *struct {
		ArtifactID string        `path:"artifact_id"`
		Body       ReasonRequest `json:"body"`
	}) (*struct {
		Body ArtifactResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RequestChanges(ctx, input.ArtifactID, actorID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArtifactResponse `json:"body"`
		}{Body: artifactResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-artifact",
		Method:      http.MethodPost,
		Path:        "/artifacts/{artifact_id}/reject",
		Summary:     "Permanently reject",
	}, func(ctx context.Context, input *struct {
		ArtifactID string                `path:"artifact_id"`
		Body       RejectArtifactRequest `json:"body"`
	}) (*struct {
		Body ArtifactResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RejectFinal(ctx, input.ArtifactID, actorID, input.Body.Reason, input.Body.Confirmation)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArtifactResponse `json:"body"`
		}{Body: artifactResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revise-artifact",
		Method:        http.MethodPost,
		Path:          "/artifacts/{artifact_id}/revisions",
		Summary:       "Start a new revision",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ArtifactID string                `path:"artifact_id"`
		Body       ReviseArtifactRequest `json:"body"`
	}) (*struct {
		Body ArtifactResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateRevision(ctx, input.ArtifactID, actorID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArtifactResponse `json:"body"`
		}{Body: artifactResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "restore-artifact",
		Method:        http.MethodPost,
		Path:          "/artifacts/{artifact_id}/restore",
		Summary:       "Restore this version's content as a new revision",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ArtifactID string                `path:"artifact_id"`
		Body       ReviseArtifactRequest `json:"body"`
	}) (*struct {
		Body ArtifactResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RestoreVersion(ctx, input.ArtifactID, actorID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArtifactResponse `json:"body"`
		}{Body: artifactResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-current-artifact",
		Method:      http.MethodPost,
		Path:        "/artifacts/{artifact_id}/set-current",
		Summary:     "Point the current pointer at this version",
	}, func(ctx context.Context, input *struct {
		ArtifactID string `path:"artifact_id"`
	}) (*struct {
		Body ArtifactResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetCurrent(ctx, input.ArtifactID, actorID); err != nil {
			return nil, handleError(err)
		}
		a, err := e.Repo.GetArtifact(ctx, input.ArtifactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArtifactResponse `json:"body"`
		}{Body: artifactResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "artifact-history",
		Method:      http.MethodGet,
		Path:        "/artifacts/{artifact_id}/history",
		Summary:     "Full version history of the chain",
	}, func(ctx context.Context, input *struct {
		ArtifactID string `path:"artifact_id"`
	}) (*struct {
		Body []ArtifactResponse `json:"body"`
	}, error) {
		items, err := e.VersionHistory(ctx, input.ArtifactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ArtifactResponse `json:"body"`
		}{Body: mapArtifacts(items)}, nil
	})
}

func registerChanges(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-change",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/changes",
		Summary:       "Open a change request",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      CreateChangeRequest `json:"body"`
	}) (*struct {
		Body ChangeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.CreateChangeOptions{
			ProjectID:     input.ProjectID,
			ArtifactID:    input.Body.ArtifactID,
			Title:         input.Body.Title,
			Summary:       input.Body.Summary,
			Priority:      input.Body.Priority,
			RequesterName: input.Body.RequesterName,
			ActorID:       actorID,
		}
		if input.Body.Impact != nil {
			opts.Impact = domain.ImpactAnalysis{
				Days: input.Body.Impact.Days,
				Cost: input.Body.Impact.Cost,
				Risk: input.Body.Impact.Risk,
			}
		}
		c, err := e.CreateChange(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChangeResponse `json:"body"`
		}{Body: changeResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-changes",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/changes",
		Summary:     "List change requests",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Lane      string `query:"lane"`
		Decision  string `query:"decision"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []ChangeResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListChanges(ctx, repo.ChangeFilters{
			ProjectID: input.ProjectID,
			Lane:      input.Lane,
			Decision:  input.Decision,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ChangeResponse `json:"body"`
		}{Body: mapChanges(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-change",
		Method:      http.MethodGet,
		Path:        "/changes/{change_id}",
		Summary:     "Get change request",
	}, func(ctx context.Context, input *struct {
		ChangeID string `path:"change_id"`
	}) (*struct {
		Body ChangeResponse `json:"body"`
	}, error) {
		c, err := e.Repo.GetChange(ctx, input.ChangeID)
		if err != nil {
			return nil, handleError(err)
		}
		if c.DeletedAt != nil {
			return nil, handleError(repo.ErrNotFound)
		}
		return &struct {
			Body ChangeResponse `json:"body"`
		}{Body: changeResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-change",
		Method:      http.MethodPatch,
		Path:        "/changes/{change_id}/lane",
		Summary:     "Move a card between lanes",
	}, func(ctx context.Context, input *struct {
		ChangeID string            `path:"change_id"`
		Body     MoveChangeRequest `json:"body"`
	}) (*struct {
		Body MoveChangeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, warnings, err := e.PatchDeliveryStatus(ctx, input.ChangeID, actorID, input.Body.DeliveryLane)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MoveChangeResponse `json:"body"`
		}{Body: MoveChangeResponse{Change: changeResponse(c), Warnings: warnings}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-change",
		Method:      http.MethodPost,
		Path:        "/changes/{change_id}/submit",
		Summary:     "Submit a card for approval",
	}, func(ctx context.Context, input *struct {
		ChangeID string `path:"change_id"`
	}) (*struct {
		Body ChangeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.SubmitForApproval(ctx, input.ChangeID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChangeResponse `json:"body"`
		}{Body: changeResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-change",
		Method:      http.MethodPost,
		Path:        "/changes/{change_id}/decision",
		Summary:     "Record an approval decision",
	}, func(ctx context.Context, input *struct {
		ChangeID string              `path:"change_id"`
		Body     DecideChangeRequest `json:"body"`
	}) (*struct {
		Body ChangeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.DecideChange(ctx, input.ChangeID, actorID, input.Body.Verdict, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChangeResponse `json:"body"`
		}{Body: changeResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-change",
		Method:      http.MethodDelete,
		Path:        "/changes/{change_id}",
		Summary:     "Delete a draft card",
	}, func(ctx context.Context, input *struct {
		ChangeID string `path:"change_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteDraft(ctx, input.ChangeID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerBoard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "board",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/board",
		Summary:     "Change request board grouped by lane",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body map[string][]ChangeResponse `json:"body"`
	}, error) {
		board, err := e.Board(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make(map[string][]ChangeResponse, len(board))
		for lane, cards := range board {
			out[string(lane)] = mapChanges(cards)
		}
		return &struct {
			Body map[string][]ChangeResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "project-audit",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/audit",
		Summary:     "Audit trail, newest first",
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Action     string `query:"action"`
		Limit      int    `query:"limit"`
		Cursor     int64  `query:"cursor"`
	}) (*struct {
		Body []AuditEventResponse `json:"body"`
	}, error) {
		items, err := e.Repo.LatestAuditEvents(ctx, repo.AuditFilters{
			ProjectID:  input.ProjectID,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Action:     input.Action,
			Limit:      input.Limit,
			Cursor:     input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AuditEventResponse `json:"body"`
		}{Body: mapAuditEvents(items)}, nil
	})
}
