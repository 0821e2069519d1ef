package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/versus-live/versus/internal/auth"
	"github.com/versus-live/versus/internal/cooldown"
	"github.com/versus-live/versus/internal/invite"
	"github.com/versus-live/versus/internal/lobby"
	"github.com/versus-live/versus/internal/models"
	"github.com/versus-live/versus/internal/presence"
	"github.com/versus-live/versus/internal/store"
)

func newTestServer(t *testing.T) *BattleServer {
	t.Helper()
	if err := auth.Init(); err != nil { // ephemeral keys, no DB needed
		t.Fatalf("auth init: %v", err)
	}
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	lobbies := store.NewMemoryLobbyStore()
	invitations := store.NewMemoryInvitationStore()
	channel := presence.NewMemoryChannel()
	tracker := cooldown.NewTracker(cooldown.NewMemoryStore(), time.Minute, logger)
	manager := lobby.NewManager(lobbies, tracker, channel, lobby.NoopPool(), logger)
	invites := invite.NewService(invitations, manager, channel, logger)
	return NewBattleServer(manager, invites, tracker, channel, nil, logger)
}

func authedRequest(t *testing.T, method, target string, body string, userID uuid.UUID) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	token, err := auth.CreateJWT(userID.String())
	if err != nil {
		t.Fatalf("create jwt: %v", err)
	}
	req.Header.Set("Cookie", "auth_token="+token)
	return req
}

func TestCreateLobbyHandler(t *testing.T) {
	bs := newTestServer(t)
	host := uuid.New()

	req := authedRequest(t, "POST", "/lobby/create", `{"format":"2v2"}`, host)
	w := httptest.NewRecorder()
	CreateLobbyHandler(bs).ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var lob models.Lobby
	if err := json.Unmarshal(w.Body.Bytes(), &lob); err != nil {
		t.Fatalf("failed to decode lobby: %v", err)
	}
	if lob.ID == uuid.Nil {
		t.Fatalf("lobby has no ID")
	}
	if lob.HostID != host {
		t.Fatalf("lobby host mismatch, expected %v got %v", host, lob.HostID)
	}
	if lob.State != models.StateWaiting {
		t.Fatalf("expected waiting state, got %s", lob.State)
	}
}

func TestCreateLobbyHandlerRequiresAuth(t *testing.T) {
	bs := newTestServer(t)

	req := httptest.NewRequest("POST", "/lobby/create", bytes.NewBufferString(`{"format":"1v1"}`))
	w := httptest.NewRecorder()
	CreateLobbyHandler(bs).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestJoinLobbyHandlerFull(t *testing.T) {
	bs := newTestServer(t)
	host := uuid.New()

	lob, err := bs.Manager.CreateLobby(context.Background(), host, "1v1")
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}

	body := fmt.Sprintf(`{"lobby_id":%q}`, lob.ID)
	req := authedRequest(t, "POST", "/lobby/join", body, uuid.New())
	w := httptest.NewRecorder()
	JoinLobbyHandler(bs).ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for full lobby, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetLobbyHandler(t *testing.T) {
	bs := newTestServer(t)
	host := uuid.New()

	lob, err := bs.Manager.CreateLobby(context.Background(), host, "2v2")
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}

	req := authedRequest(t, "GET", "/lobby/get?id="+lob.ID.String(), "", host)
	w := httptest.NewRecorder()
	GetLobbyHandler(bs).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Lobby   models.Lobby `json:"lobby"`
		Version int64        `json:"version"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Lobby.ID != lob.ID {
		t.Fatalf("lobby ID mismatch")
	}
	if resp.Version != 1 {
		t.Fatalf("expected version 1, got %d", resp.Version)
	}
}

func TestListLobbiesHandler(t *testing.T) {
	bs := newTestServer(t)
	host := uuid.New()

	open, err := bs.Manager.CreateLobby(context.Background(), host, "2v2")
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}
	searching, err := bs.Manager.CreateLobby(context.Background(), uuid.New(), "1v1")
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}
	if _, err := bs.Manager.RequestSearch(context.Background(), searching.ID, searching.HostID); err != nil {
		t.Fatalf("request search: %v", err)
	}

	req := authedRequest(t, "GET", "/lobby/list", "", host)
	w := httptest.NewRecorder()
	ListLobbiesHandler(bs).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var lobbies []models.Lobby
	if err := json.Unmarshal(w.Body.Bytes(), &lobbies); err != nil {
		t.Fatalf("failed to decode lobby list: %v", err)
	}
	if len(lobbies) != 1 {
		t.Fatalf("expected 1 open lobby, got %d", len(lobbies))
	}
	if lobbies[0].ID != open.ID {
		t.Fatalf("wrong lobby listed: %v", lobbies[0].ID)
	}
	if lobbies[0].State != models.StateWaiting {
		t.Fatalf("listed lobby not waiting: %s", lobbies[0].State)
	}
}

func TestGetLobbyHandlerNotFound(t *testing.T) {
	bs := newTestServer(t)

	req := authedRequest(t, "GET", "/lobby/get?id="+uuid.NewString(), "", uuid.New())
	w := httptest.NewRecorder()
	GetLobbyHandler(bs).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRequestSearchHandlerBlocked(t *testing.T) {
	bs := newTestServer(t)
	host := uuid.New()

	lob, err := bs.Manager.CreateLobby(context.Background(), host, "1v1")
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}
	if err := bs.Tracker.RecordDecline(context.Background(), host); err != nil {
		t.Fatalf("record decline: %v", err)
	}

	body := fmt.Sprintf(`{"lobby_id":%q}`, lob.ID)
	req := authedRequest(t, "POST", "/lobby/search/request", body, host)
	w := httptest.NewRecorder()
	RequestSearchHandler(bs).ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for blocked member, got %d: %s", w.Code, w.Body.String())
	}
	// The message must name the blocked member.
	if !bytes.Contains(w.Body.Bytes(), []byte(host.String())) {
		t.Fatalf("blocked message does not name the member: %s", w.Body.String())
	}
}

func TestRequestSearchHandlerNotHost(t *testing.T) {
	bs := newTestServer(t)
	host := uuid.New()
	member := uuid.New()

	lob, err := bs.Manager.CreateLobby(context.Background(), host, "2v2")
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}
	if _, err := bs.Manager.JoinLobby(context.Background(), lob.ID, member); err != nil {
		t.Fatalf("join lobby: %v", err)
	}

	body := fmt.Sprintf(`{"lobby_id":%q}`, lob.ID)
	req := authedRequest(t, "POST", "/lobby/search/request", body, member)
	w := httptest.NewRecorder()
	RequestSearchHandler(bs).ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-host, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCooldownStatusHandler(t *testing.T) {
	bs := newTestServer(t)
	userID := uuid.New()

	req := authedRequest(t, "GET", "/cooldown/status", "", userID)
	w := httptest.NewRecorder()
	CooldownStatusHandler(bs).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Blocked bool `json:"blocked"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Blocked {
		t.Fatalf("fresh user should not be blocked")
	}

	if err := bs.Tracker.RecordDecline(context.Background(), userID); err != nil {
		t.Fatalf("record decline: %v", err)
	}
	w = httptest.NewRecorder()
	CooldownStatusHandler(bs).ServeHTTP(w, authedRequest(t, "GET", "/cooldown/status", "", userID))
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Blocked {
		t.Fatalf("user should be blocked after decline")
	}
}
