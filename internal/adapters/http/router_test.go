package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/dkeye/tempvoice/internal/app"
	"github.com/dkeye/tempvoice/internal/app/apptest"
	"github.com/dkeye/tempvoice/internal/app/orch"
	"github.com/dkeye/tempvoice/internal/app/proposals"
	"github.com/dkeye/tempvoice/internal/app/rooms"
	"github.com/dkeye/tempvoice/internal/clock"
	"github.com/dkeye/tempvoice/internal/config"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/gin-gonic/gin"
)

const testSecret = "test-secret"

type fixture struct {
	router   *gin.Engine
	orch     *orch.Orchestrator
	run      *apptest.Runner
	platform *apptest.FakePlatform
	coord    *proposals.Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	manager := app.NewRoomManager()
	app.SeedLayout(manager, app.LayoutConfig{Category: "Voice", Static: []string{"Lobby"}})
	o := &orch.Orchestrator{Registry: app.NewRegistry(), Rooms: manager}

	run := apptest.StartLoop(t)
	platform := apptest.NewFakePlatform(nil)
	platform.AddRoom(domain.Room{ID: "cat", Name: "Voice", Kind: domain.RoomCategory})
	platform.AddRoom(domain.Room{ID: "lobby", Name: "Lobby", ParentID: "cat"})
	platform.AddUser(domain.User{ID: "mod", Username: "mod"})
	auth := apptest.NewStaticAuthority()
	auth.Elevated["mod"] = true
	coord := proposals.NewCoordinator(proposals.Config{}, rooms.NewRegistry(), platform, auth, &apptest.FakeNotifier{}, clock.Fake(apptest.Epoch), run.Loop)

	cfg := &config.Config{Mode: "test", StaticPath: t.TempDir(), Secret: testSecret}
	return &fixture{
		router:   SetupRouter(context.Background(), cfg, Deps{Orch: o, Proposals: coord}),
		orch:     o,
		run:      run,
		platform: platform,
		coord:    coord,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func adminHeader(t *testing.T, secret string) http.Header {
	t.Helper()
	tok, err := IssueAdminToken(secret, "ops", time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("IssueAdminToken() error = %v", err)
	}
	return http.Header{"Authorization": {"Bearer " + tok}}
}

// me fetches /api/me and returns the caller's id and session cookie.
func (f *fixture) me(t *testing.T) (domain.UserID, http.Header) {
	t.Helper()
	w := f.do(t, http.MethodGet, "/api/me", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/me = %d, want 200", w.Code)
	}
	var u domain.User
	if err := json.Unmarshal(w.Body.Bytes(), &u); err != nil {
		t.Fatal(err)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie set")
	}
	return u.ID, http.Header{"Cookie": {cookies[0].Name + "=" + cookies[0].Value}}
}

func TestClientTokenIsStable(t *testing.T) {
	f := newFixture(t)
	id, cookie := f.me(t)
	if id == "" {
		t.Fatal("empty client token")
	}
	w := f.do(t, http.MethodGet, "/api/me", nil, cookie)
	var again domain.User
	if err := json.Unmarshal(w.Body.Bytes(), &again); err != nil {
		t.Fatal(err)
	}
	if again.ID != id {
		t.Fatalf("second /api/me id = %q, want %q", again.ID, id)
	}
}

func TestListRooms(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/rooms", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/rooms = %d, want 200", w.Code)
	}
	var resp struct {
		Rooms []struct {
			Name string `json:"name"`
			Kind string `json:"kind"`
		} `json:"rooms"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range resp.Rooms {
		names = append(names, r.Name)
	}
	if want := []string{"Voice", "Lobby"}; !slices.Equal(names, want) {
		t.Fatalf("rooms = %v, want %v", names, want)
	}
}

func TestProposalsForCaller(t *testing.T) {
	f := newFixture(t)
	id, cookie := f.me(t)
	f.platform.AddUser(domain.User{ID: id, Username: "me"})
	f.run.Do(func(ctx context.Context) {
		if _, err := f.coord.CreateProposal(ctx, proposals.Request{
			Kind:           proposals.KindInvitation,
			ProposerID:     "mod",
			CounterpartyID: id,
			TargetRoomID:   "lobby",
		}); err != nil {
			t.Errorf("CreateProposal() error = %v", err)
		}
	})

	w := f.do(t, http.MethodGet, "/api/proposals", nil, cookie)
	var resp struct {
		Proposals []proposalView `json:"proposals"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Proposals) != 1 || resp.Proposals[0].Proposer != "mod" || resp.Proposals[0].State != "PENDING" {
		t.Fatalf("proposals = %+v, want one pending invitation from mod", resp.Proposals)
	}

	if w := f.do(t, http.MethodGet, "/api/proposals?user=mod", nil, cookie); w.Code != http.StatusForbidden {
		t.Fatalf("GET other user's proposals = %d, want 403", w.Code)
	}
	h := adminHeader(t, testSecret)
	h["Cookie"] = cookie["Cookie"]
	if w := f.do(t, http.MethodGet, "/api/proposals?user=mod", nil, h); w.Code != http.StatusOK {
		t.Fatalf("admin GET other user's proposals = %d, want 200", w.Code)
	}
}

func TestAdminSetRoles(t *testing.T) {
	f := newFixture(t)
	id, _ := f.me(t)
	path := "/api/admin/users/" + string(id) + "/roles"
	body := map[string]any{"roles": []string{"admin", "dj"}}

	tests := []struct {
		name   string
		path   string
		header http.Header
		want   int
	}{
		{"no token", path, nil, http.StatusUnauthorized},
		{"wrong secret", path, adminHeader(t, "other"), http.StatusUnauthorized},
		{"unknown user", "/api/admin/users/nobody/roles", adminHeader(t, testSecret), http.StatusNotFound},
		{"ok", path, adminHeader(t, testSecret), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.do(t, http.MethodPut, tt.path, body, tt.header); w.Code != tt.want {
				t.Fatalf("PUT roles = %d, want %d", w.Code, tt.want)
			}
		})
	}

	u, _ := f.orch.Registry.LookupUser(id)
	if !slices.Equal(u.Roles, []domain.Role{"admin", "dj"}) {
		t.Fatalf("Roles = %v, want [admin dj]", u.Roles)
	}
}
