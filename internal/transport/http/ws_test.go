package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"pixeltrivia/internal/app"
	"pixeltrivia/internal/infra/memory"
	"github.com/gorilla/websocket"
)

func TestWSStreamsSnapshots(t *testing.T) {
	store := memory.NewRoomStore()
	bank := memory.NewQuestionBank(memory.SampleQuestions())
	service := app.NewRoomService(store, bank)

	mux := http.NewServeMux()
	ws := NewWSHandler(service)
	mux.HandleFunc("GET /ws", ws.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx := context.Background()
	created, err := service.CreateRoom(ctx, "Alice", "knight", app.RoomConfig{
		MaxPlayers: 4, TimeLimit: 30, QuestionCount: 2,
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	wsURL := "ws" + server.URL[len("http"):] + "/ws?code=" + created.RoomCode
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The initial snapshot arrives on connect.
	first := readSnapshot(t, conn)
	if first.Payload.Room.Code != created.RoomCode {
		t.Fatalf("expected snapshot for %s, got %s", created.RoomCode, first.Payload.Room.Code)
	}
	if len(first.Payload.Players) != 1 {
		t.Fatalf("expected host-only roster, got %d players", len(first.Payload.Players))
	}

	if _, err := service.JoinRoom(ctx, created.RoomCode, "Bob", "wizard"); err != nil {
		t.Fatalf("join: %v", err)
	}
	second := readSnapshot(t, conn)
	if len(second.Payload.Players) != 2 {
		t.Fatalf("expected roster update with 2 players, got %d", len(second.Payload.Players))
	}
}

func TestWSRejectsMissingCode(t *testing.T) {
	service := app.NewRoomService(memory.NewRoomStore(), memory.NewQuestionBank(memory.SampleQuestions()))
	mux := http.NewServeMux()
	ws := NewWSHandler(service)
	mux.HandleFunc("GET /ws", ws.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Get(server.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without code, got %d", resp.StatusCode)
	}
}

func TestWSUnknownRoomSendsError(t *testing.T) {
	service := app.NewRoomService(memory.NewRoomStore(), memory.NewQuestionBank(memory.SampleQuestions()))
	mux := http.NewServeMux()
	ws := NewWSHandler(service)
	mux.HandleFunc("GET /ws", ws.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):] + "/ws?code=ZZZZZZ"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var msg wsError
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "error" {
		t.Fatalf("expected error frame, got %+v", msg)
	}
}

func readSnapshot(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if msg.Type != "room" {
		t.Fatalf("expected room frame, got %q", msg.Type)
	}
	return msg
}
