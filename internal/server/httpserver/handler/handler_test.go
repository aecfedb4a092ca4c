package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/unknownsaying/meshsync/internal/channel"
	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/internal/storage"
	"github.com/unknownsaying/meshsync/pkg/vmath"
)

type fakeDirectory struct {
	peers    map[domain.PeerID]domain.Peer
	entities map[domain.EntityID]domain.Entity
	chat     []channel.ChatMessage
	kicked   []domain.PeerID
}

func (f *fakeDirectory) Peers() []domain.Peer {
	out := make([]domain.Peer, 0, len(f.peers))
	for _, p := range f.peers {
		out = append(out, p)
	}
	return out
}

func (f *fakeDirectory) Peer(id domain.PeerID) (domain.Peer, bool) {
	p, ok := f.peers[id]
	return p, ok
}

func (f *fakeDirectory) Entities() []domain.Entity {
	out := make([]domain.Entity, 0, len(f.entities))
	for _, e := range f.entities {
		out = append(out, e)
	}
	return out
}

func (f *fakeDirectory) Entity(id domain.EntityID) (domain.Entity, bool) {
	e, ok := f.entities[id]
	return e, ok
}

func (f *fakeDirectory) ChatHistory() []channel.ChatMessage { return f.chat }

func (f *fakeDirectory) Kick(id domain.PeerID, reason string) error {
	if _, ok := f.peers[id]; !ok {
		return domain.ErrPeerNotFound
	}
	f.kicked = append(f.kicked, id)
	delete(f.peers, id)
	return nil
}

type fakeProfiles struct {
	profiles []storage.Profile
}

func (f *fakeProfiles) Profiles(context.Context) ([]storage.Profile, error) {
	return f.profiles, nil
}

func testDirectory() *fakeDirectory {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &fakeDirectory{
		peers: map[domain.PeerID]domain.Peer{
			1: {ID: 1, Name: "ada", State: domain.PeerConnected, ConnectedAt: now, LastSeen: now},
			2: {ID: 2, Name: "bob", State: domain.PeerConnected, ConnectedAt: now, LastSeen: now},
		},
		entities: map[domain.EntityID]domain.Entity{
			10: {ID: 10, Owner: 1, Type: domain.EntityAvatar, Position: vmath.Vec3{X: 1}, UpdatedAt: now},
			11: {ID: 11, Owner: domain.ServerPeer, Type: domain.EntityObject, UpdatedAt: now},
		},
		chat: []channel.ChatMessage{
			{Sender: 1, Text: "hello", At: now},
		},
	}
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, *Response) {
	t.Helper()
	var reader = strings.NewReader(body)
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: invalid response JSON: %v", method, path, err)
	}
	return rec, &resp
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatus(t *testing.T) {
	h := New(testDirectory(), nil, quiet())
	rec, resp := doRequest(t, h, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data, _ := json.Marshal(resp.Data)
	var summary StatusSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Peers != 2 || summary.Entities != 2 {
		t.Errorf("summary = %+v, want 2 peers 2 entities", summary)
	}
}

func TestListPeers(t *testing.T) {
	h := New(testDirectory(), nil, quiet())
	rec, resp := doRequest(t, h, http.MethodGet, "/api/v1/peers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data, _ := json.Marshal(resp.Data)
	var peers []PeerInfo
	if err := json.Unmarshal(data, &peers); err != nil {
		t.Fatalf("decode peers: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("len(peers) = %d, want 2", len(peers))
	}
	for _, p := range peers {
		if p.State != "connected" {
			t.Errorf("peer %d state = %q, want connected", p.ID, p.State)
		}
	}
}

func TestGetPeer(t *testing.T) {
	h := New(testDirectory(), nil, quiet())

	rec, resp := doRequest(t, h, http.MethodGet, "/api/v1/peers/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data, _ := json.Marshal(resp.Data)
	var p PeerInfo
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("decode peer: %v", err)
	}
	if p.Name != "ada" {
		t.Errorf("Name = %q, want ada", p.Name)
	}

	rec, _ = doRequest(t, h, http.MethodGet, "/api/v1/peers/99", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown peer status = %d, want 404", rec.Code)
	}

	rec, _ = doRequest(t, h, http.MethodGet, "/api/v1/peers/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

func TestKickPeer(t *testing.T) {
	dir := testDirectory()
	h := New(dir, nil, quiet())

	rec, _ := doRequest(t, h, http.MethodPost, "/api/v1/peers/1/kick", `{"reason":"test eviction"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(dir.kicked) != 1 || dir.kicked[0] != 1 {
		t.Errorf("kicked = %v, want [1]", dir.kicked)
	}

	// Empty body works too.
	rec, _ = doRequest(t, h, http.MethodPost, "/api/v1/peers/2/kick", "")
	if rec.Code != http.StatusOK {
		t.Errorf("kick without body status = %d, want 200", rec.Code)
	}

	rec, _ = doRequest(t, h, http.MethodPost, "/api/v1/peers/99/kick", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("kick unknown peer status = %d, want 404", rec.Code)
	}
}

func TestGetEntity(t *testing.T) {
	h := New(testDirectory(), nil, quiet())

	rec, resp := doRequest(t, h, http.MethodGet, "/api/v1/entities/10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data, _ := json.Marshal(resp.Data)
	var e EntityInfo
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("decode entity: %v", err)
	}
	if e.Type != "avatar" || e.Owner != 1 {
		t.Errorf("entity = %+v, want avatar owned by 1", e)
	}
	if e.Position[0] != 1 {
		t.Errorf("Position.X = %v, want 1", e.Position[0])
	}

	rec, _ = doRequest(t, h, http.MethodGet, "/api/v1/entities/404", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown entity status = %d, want 404", rec.Code)
	}
}

func TestChatHistory(t *testing.T) {
	h := New(testDirectory(), nil, quiet())
	rec, resp := doRequest(t, h, http.MethodGet, "/api/v1/chat", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data, _ := json.Marshal(resp.Data)
	var entries []ChatEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if len(entries) != 1 || entries[0].Text != "hello" {
		t.Errorf("chat = %+v, want one hello entry", entries)
	}
}

func TestProfiles(t *testing.T) {
	src := &fakeProfiles{profiles: []storage.Profile{{Name: "ada", Sessions: 3}}}
	h := New(testDirectory(), src, quiet())

	rec, resp := doRequest(t, h, http.MethodGet, "/api/v1/profiles", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data, _ := json.Marshal(resp.Data)
	var profiles []storage.Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		t.Fatalf("decode profiles: %v", err)
	}
	if len(profiles) != 1 || profiles[0].Sessions != 3 {
		t.Errorf("profiles = %+v, want ada with 3 sessions", profiles)
	}
}

func TestProfilesWithoutStore(t *testing.T) {
	h := New(testDirectory(), nil, quiet())
	rec, _ := doRequest(t, h, http.MethodGet, "/api/v1/profiles", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when persistence is disabled", rec.Code)
	}
}
