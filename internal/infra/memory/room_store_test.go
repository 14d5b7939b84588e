package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pixeltrivia/internal/app"
	"pixeltrivia/internal/domain"
)

func TestCreateRoomConflict(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()

	room := testRoom("ABC123")
	if err := store.CreateRoom(ctx, room); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateRoom(ctx, room); !errors.Is(err, domain.ErrCodeConflict) {
		t.Fatalf("expected code conflict, got %v", err)
	}
}

func TestAddPlayerCapacityAndState(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()
	if err := store.CreateRoom(ctx, testRoom("ABC123")); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i, id := range []string{"p1", "p2"} {
		if _, err := store.AddPlayer(ctx, "ABC123", domain.Player{ID: id, JoinedAt: time.Now().Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	if _, err := store.AddPlayer(ctx, "ABC123", domain.Player{ID: "p3"}); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("expected room full, got %v", err)
	}
	if _, err := store.AddPlayer(ctx, "NOPE00", domain.Player{ID: "p4"}); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	err := store.UpdateRoomStatus(ctx, "ABC123", app.StatusUpdate{
		ExpectStatus: domain.StatusWaiting,
		ExpectIndex:  -1,
		Status:       domain.StatusActive,
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := store.RemovePlayer(ctx, "ABC123", "p2"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := store.AddPlayer(ctx, "ABC123", domain.Player{ID: "p5"}); !errors.Is(err, domain.ErrRoomState) {
		t.Fatalf("expected room state error for active room, got %v", err)
	}
}

func TestRemovePlayerIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()
	if err := store.CreateRoom(ctx, testRoom("ABC123")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.RemovePlayer(ctx, "ABC123", "ghost"); err != nil {
		t.Fatalf("removing unknown player should not error, got %v", err)
	}
	if err := store.RemovePlayer(ctx, "NOPE00", "ghost"); err != nil {
		t.Fatalf("removing from unknown room should not error, got %v", err)
	}
}

func TestUpdateRoomStatusGuarded(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()
	if err := store.CreateRoom(ctx, testRoom("ABC123")); err != nil {
		t.Fatalf("create: %v", err)
	}

	start := app.StatusUpdate{
		ExpectStatus:         domain.StatusWaiting,
		ExpectIndex:          -1,
		Status:               domain.StatusActive,
		CurrentQuestionIndex: 0,
		TotalQuestions:       3,
		QuestionStartTime:    time.Now(),
	}
	if err := store.UpdateRoomStatus(ctx, "ABC123", start); err != nil {
		t.Fatalf("start transition: %v", err)
	}
	// The same transition again loses its precondition.
	if err := store.UpdateRoomStatus(ctx, "ABC123", start); !errors.Is(err, domain.ErrRoomState) {
		t.Fatalf("expected room state error on repeat, got %v", err)
	}

	advance := app.StatusUpdate{
		ExpectStatus:         domain.StatusActive,
		ExpectIndex:          0,
		Status:               domain.StatusActive,
		CurrentQuestionIndex: 1,
		TotalQuestions:       3,
		QuestionStartTime:    time.Now(),
	}
	if err := store.UpdateRoomStatus(ctx, "ABC123", advance); err != nil {
		t.Fatalf("advance: %v", err)
	}
	// A duplicate advance (host double-click) finds index already moved.
	if err := store.UpdateRoomStatus(ctx, "ABC123", advance); !errors.Is(err, domain.ErrRoomState) {
		t.Fatalf("expected room state error on duplicate advance, got %v", err)
	}
}

func TestRecordAnswerExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()
	room := testRoom("ABC123")
	room.MaxPlayers = 4
	if err := store.CreateRoom(ctx, room); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.AddPlayer(ctx, "ABC123", domain.Player{ID: "p1"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	entry := domain.AnswerEntry{QuestionIndex: 0, SelectedAnswer: 1, TimeMs: 2000, Correct: true, Score: 147}

	var wg sync.WaitGroup
	acceptedCount := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			accepted, _, err := store.RecordAnswer(ctx, "ABC123", "p1", entry)
			if err != nil {
				t.Errorf("record: %v", err)
				return
			}
			acceptedCount <- accepted
		}()
	}
	wg.Wait()
	close(acceptedCount)

	accepted := 0
	for ok := range acceptedCount {
		if ok {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted submission, got %d", accepted)
	}

	player, err := store.GetPlayer(ctx, "ABC123", "p1")
	if err != nil {
		t.Fatalf("get player: %v", err)
	}
	if player.Score != 147 || len(player.Answers) != 1 {
		t.Fatalf("expected single scored answer, got score=%d answers=%d", player.Score, len(player.Answers))
	}
}

func TestResetAnswerMarkersKeepsHistory(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()
	if err := store.CreateRoom(ctx, testRoom("ABC123")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.AddPlayer(ctx, "ABC123", domain.Player{ID: "p1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, _, err := store.RecordAnswer(ctx, "ABC123", "p1", domain.AnswerEntry{QuestionIndex: 0, Score: 100, Correct: true}); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := store.ResetAnswerMarkers(ctx, "ABC123"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	player, _ := store.GetPlayer(ctx, "ABC123", "p1")
	if player.HasAnswered {
		t.Fatalf("marker should be cleared")
	}
	if len(player.Answers) != 1 || player.Score != 100 {
		t.Fatalf("history must survive a marker reset, got %+v", player)
	}

	// Next question records normally.
	accepted, total, err := store.RecordAnswer(ctx, "ABC123", "p1", domain.AnswerEntry{QuestionIndex: 1, Score: 50, Correct: true})
	if err != nil || !accepted || total != 150 {
		t.Fatalf("expected accepted total 150, got accepted=%v total=%d err=%v", accepted, total, err)
	}
}

func TestScoreEqualsSumOfAnswers(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()
	if err := store.CreateRoom(ctx, testRoom("ABC123")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.AddPlayer(ctx, "ABC123", domain.Player{ID: "p1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	scores := []int{147, 0, 133, 42}
	sum := 0
	for i, points := range scores {
		_, total, err := store.RecordAnswer(ctx, "ABC123", "p1", domain.AnswerEntry{QuestionIndex: i, Score: points})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		sum += points
		if total != sum {
			t.Fatalf("after %d answers expected total %d, got %d", i+1, sum, total)
		}
	}
}

func TestPromoteHost(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()
	if err := store.CreateRoom(ctx, testRoom("ABC123")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.AddPlayer(ctx, "ABC123", domain.Player{ID: "p1", IsHost: true}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := store.AddPlayer(ctx, "ABC123", domain.Player{ID: "p2"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := store.PromoteHost(ctx, "ABC123", "p2"); err != nil {
		t.Fatalf("promote: %v", err)
	}
	players, _ := store.ListPlayers(ctx, "ABC123")
	for _, p := range players {
		if p.ID == "p2" && !p.IsHost {
			t.Fatalf("p2 should be host")
		}
		if p.ID == "p1" && p.IsHost {
			t.Fatalf("p1 should no longer be host")
		}
	}
	if err := store.PromoteHost(ctx, "ABC123", "ghost"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
}

func testRoom(code string) domain.Room {
	return domain.Room{
		Code:       code,
		Status:     domain.StatusWaiting,
		GameMode:   "classic",
		Category:   "general",
		MaxPlayers: 2,
		TimeLimit:  30,
		CreatedAt:  time.Now(),
	}
}
