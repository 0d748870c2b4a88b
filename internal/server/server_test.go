package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"baseline/internal/config"
	"baseline/internal/db"
	"baseline/internal/engine"
	"baseline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("proj-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	ctx := context.Background()
	if _, err := e.InitProject(ctx, "proj-1", "Test project", "", "tester"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "tester")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestArtifactApprovalOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/proj-1/members", map[string]any{
		"actor_id":    "lead",
		"role":        "editor",
		"is_approver": true,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("grant member: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/proj-1/artifacts", map[string]any{
		"type":    "charter",
		"title":   "Project charter",
		"content": "goals",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create artifact: %d %s", res.StatusCode, string(data))
	}
	var created ArtifactResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal artifact: %v", err)
	}
	if created.Version != 1 || !created.IsCurrent {
		t.Fatalf("created = %+v", created)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/artifacts/"+created.ID+"/submit", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}
	var submitted ArtifactResponse
	_ = json.Unmarshal(data, &submitted)
	if submitted.ApprovalStatus != "submitted" || !submitted.IsLocked {
		t.Fatalf("submitted = %+v", submitted)
	}

	// self-approval maps to 403
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/artifacts/"+created.ID+"/approve", nil, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("self-approve: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/artifacts/"+created.ID+"/approve", nil,
		map[string]string{"X-Actor-Id": "lead"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve: %d %s", res.StatusCode, string(data))
	}
	var approved ArtifactResponse
	_ = json.Unmarshal(data, &approved)
	if approved.ApprovalStatus != "approved" || !approved.IsBaseline {
		t.Fatalf("approved = %+v", approved)
	}

	// editing a decided version maps to 422
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/artifacts/"+created.ID, map[string]any{
		"content": "late edit",
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("edit approved: %d %s", res.StatusCode, string(data))
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/artifacts/nope", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing artifact: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/proj-1/artifacts", map[string]any{
		"type":  "memo",
		"title": "unknown type",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown type: %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "bad_request" {
		t.Fatalf("envelope = %s (%v)", string(data), err)
	}
}

func TestChangeBoardOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/proj-1/changes", map[string]any{
		"title":    "Add phase gate",
		"priority": "high",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create change: %d %s", res.StatusCode, string(data))
	}
	var created ChangeResponse
	_ = json.Unmarshal(data, &created)
	if created.DeliveryLane != "intake" {
		t.Fatalf("lane = %s", created.DeliveryLane)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/changes/"+created.ID+"/lane", map[string]any{
		"delivery_lane": "analysis",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("move: %d %s", res.StatusCode, string(data))
	}

	// direct move into review is a state refusal
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/changes/"+created.ID+"/lane", map[string]any{
		"delivery_lane": "review",
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("move to review: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/proj-1/board", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("board: %d %s", res.StatusCode, string(data))
	}
	var board map[string][]ChangeResponse
	if err := json.Unmarshal(data, &board); err != nil {
		t.Fatalf("unmarshal board: %v", err)
	}
	if len(board["analysis"]) != 1 {
		t.Fatalf("analysis = %+v", board["analysis"])
	}
}

func TestRequestsRequireAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v0/projects", nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no credentials: %d", res.StatusCode)
	}

	res2, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", res2.StatusCode)
	}
}
