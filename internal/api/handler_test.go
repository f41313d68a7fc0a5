package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/farkleio/tablecore/internal/action"
	"github.com/farkleio/tablecore/internal/config"
	"github.com/farkleio/tablecore/internal/membership"
	"github.com/farkleio/tablecore/internal/sessionctl"
	"github.com/farkleio/tablecore/internal/store"
	"github.com/farkleio/tablecore/internal/store/memadapter"
)

func newTestRouter() (http.Handler, *sessionctl.Service) {
	world := store.NewWorld(0)
	st := store.New(world, memadapter.New())
	sessCfg := config.SessionConfig{
		IdleTTL: 30 * time.Second,
		TurnTimeout: 20 * time.Second,
		MaxMultiplayerHumanPlayers: 6,
		RoomCodeLength: 4,
		RoomCodeAllocAttempts: 20,
		DefaultListRoomsLimit: 20,
		MaxListRoomsLimit: 100,
	}
	sessions := sessionctl.New(st, sessCfg, nil)
	mem := membership.New(world, nil, sessions, action.NewFarkleRoller())
	sessionHandler := NewSessionHandler(sessions, mem)
	adminHandler := NewAdminHandler(world, mem, config.BootstrapConfig{}, config.AuditConfig{DefaultLimit: 60, HardCap: 250})
	health := NewHealthHandler(st)
	return Router(sessionHandler, adminHandler, health), sessions
}

func doJSON(h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// Creating a private room succeeds, and listing rooms does not surface it.
func TestCreateSessionThenListRoomsHTTP(t *testing.T) {
	h, _ := newTestRouter()

	w := doJSON(h, http.MethodPost, "/sessions", map[string]interface{}{"playerId": "host"})
	if w.Code != http.StatusOK {
		t.Fatalf("create session status = %d, body = %s", w.Code, w.Body.String())
	}
	var created map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	payload := created["payload"].(map[string]interface{})
	sess := payload["session"].(map[string]interface{})
	if sess["ownerPlayerId"] != "host" {
		t.Errorf("ownerPlayerId = %v, want host", sess["ownerPlayerId"])
	}

	w = doJSON(h, http.MethodGet, "/rooms", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list rooms status = %d", w.Code)
	}
	var listed map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &listed)
	rooms := listed["payload"].(map[string]interface{})["rooms"].([]interface{})
	if len(rooms) != 0 {
		t.Errorf("expected no public rooms listed for a private session, got %d", len(rooms))
	}
}

// Joining a room at capacity is rejected.
func TestJoinSessionRoomFullHTTP(t *testing.T) {
	h, sessions := newTestRouter()
	sessions.Cfg.MaxMultiplayerHumanPlayers = 1

	w := doJSON(h, http.MethodPost, "/sessions", map[string]interface{}{"playerId": "host"})
	var created map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	sessionID := created["payload"].(map[string]interface{})["session"].(map[string]interface{})["sessionId"].(string)

	w = doJSON(h, http.MethodPost, "/sessions/"+sessionID+"/join", map[string]interface{}{"playerId": "g1"})
	if w.Code != http.StatusConflict {
		t.Fatalf("join status = %d, want 409, body = %s", w.Code, w.Body.String())
	}
	var errBody map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &errBody)
	if errBody["payload"].(map[string]interface{})["reason"] != "room_full" {
		t.Errorf("reason = %v, want room_full", errBody["payload"])
	}
}

// An owner can ban a participant from the room.
func TestModerateBanThenJoinRejectedHTTP(t *testing.T) {
	h, _ := newTestRouter()

	w := doJSON(h, http.MethodPost, "/sessions", map[string]interface{}{"playerId": "owner"})
	var created map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	sessionID := created["payload"].(map[string]interface{})["session"].(map[string]interface{})["sessionId"].(string)

	w = doJSON(h, http.MethodPost, "/sessions/"+sessionID+"/join", map[string]interface{}{"playerId": "guest"})
	if w.Code != http.StatusOK {
		t.Fatalf("join status = %d", w.Code)
	}

	w = doJSON(h, http.MethodPost, "/sessions/"+sessionID+"/moderate", map[string]interface{}{
		"requesterPlayerId": "owner", "targetPlayerId": "guest", "action": "ban",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("moderate status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(h, http.MethodPost, "/sessions/"+sessionID+"/join", map[string]interface{}{"playerId": "guest"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("rejoin status = %d, want 403", w.Code)
	}
	var errBody map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &errBody)
	if errBody["payload"].(map[string]interface{})["reason"] != "room_banned" {
		t.Errorf("reason = %v, want room_banned", errBody["payload"])
	}
}

func TestHealthEndpointReportsOK(t *testing.T) {
	h, _ := newTestRouter()
	w := doJSON(h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
}
