package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/versus-live/versus/internal/models"
)

func TestInviteFlow(t *testing.T) {
	bs := newTestServer(t)
	host := uuid.New()
	invitee := uuid.New()

	lob, err := bs.Manager.CreateLobby(context.Background(), host, "2v2")
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}

	body := fmt.Sprintf(`{"lobby_id":%q,"invitee_id":%q}`, lob.ID, invitee)
	req := authedRequest(t, "POST", "/invite/send", body, host)
	w := httptest.NewRecorder()
	SendInviteHandler(bs).ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var inv models.BattleInvitation
	if err := json.Unmarshal(w.Body.Bytes(), &inv); err != nil {
		t.Fatalf("failed to decode invitation: %v", err)
	}
	if inv.Status != models.InviteStatusPending {
		t.Fatalf("expected pending invitation, got %s", inv.Status)
	}

	// A duplicate pending invite is a conflict.
	w = httptest.NewRecorder()
	SendInviteHandler(bs).ServeHTTP(w, authedRequest(t, "POST", "/invite/send", body, host))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate invite, got %d", w.Code)
	}

	acceptBody := fmt.Sprintf(`{"invitation_id":%q}`, inv.ID)
	w = httptest.NewRecorder()
	AcceptInviteHandler(bs).ServeHTTP(w, authedRequest(t, "POST", "/invite/accept", acceptBody, invitee))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	cur, _, err := bs.Manager.GetLobby(context.Background(), lob.ID)
	if err != nil {
		t.Fatalf("get lobby: %v", err)
	}
	if !cur.HasMember(invitee) {
		t.Fatalf("invitee not seated after accept")
	}
}

func TestSelfInviteRejected(t *testing.T) {
	bs := newTestServer(t)
	host := uuid.New()

	lob, err := bs.Manager.CreateLobby(context.Background(), host, "2v2")
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}

	body := fmt.Sprintf(`{"lobby_id":%q,"invitee_id":%q}`, lob.ID, host)
	w := httptest.NewRecorder()
	SendInviteHandler(bs).ServeHTTP(w, authedRequest(t, "POST", "/invite/send", body, host))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for self-invite, got %d", w.Code)
	}
}

func TestAcceptInviteWrongUser(t *testing.T) {
	bs := newTestServer(t)
	host := uuid.New()
	invitee := uuid.New()

	lob, err := bs.Manager.CreateLobby(context.Background(), host, "2v2")
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}
	inv, err := bs.Invites.Invite(context.Background(), lob.ID, host, invitee)
	if err != nil {
		t.Fatalf("send invite: %v", err)
	}

	body := fmt.Sprintf(`{"invitation_id":%q}`, inv.ID)
	w := httptest.NewRecorder()
	AcceptInviteHandler(bs).ServeHTTP(w, authedRequest(t, "POST", "/invite/accept", body, uuid.New()))

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong invitee, got %d", w.Code)
	}
}

func TestDeclineInvite(t *testing.T) {
	bs := newTestServer(t)
	host := uuid.New()
	invitee := uuid.New()

	lob, err := bs.Manager.CreateLobby(context.Background(), host, "2v2")
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}
	inv, err := bs.Invites.Invite(context.Background(), lob.ID, host, invitee)
	if err != nil {
		t.Fatalf("send invite: %v", err)
	}

	body := fmt.Sprintf(`{"invitation_id":%q}`, inv.ID)
	w := httptest.NewRecorder()
	DeclineInviteHandler(bs).ServeHTTP(w, authedRequest(t, "POST", "/invite/decline", body, invitee))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resolved models.BattleInvitation
	if err := json.Unmarshal(w.Body.Bytes(), &resolved); err != nil {
		t.Fatalf("failed to decode invitation: %v", err)
	}
	if resolved.Status != models.InviteStatusDeclined {
		t.Fatalf("expected declined status, got %s", resolved.Status)
	}
}
