package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// testRepository runs the Repository contract against a backend. Owners and
// usernames get a fresh prefix so a shared database can be reused across runs.
func testRepository(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newRepo(t), uuid.NewString()) })
	t.Run("ChatUpsertKeepsTitle", func(t *testing.T) { testChatUpsertKeepsTitle(t, newRepo(t), uuid.NewString()) })
	t.Run("ChatsAreScopedByOwner", func(t *testing.T) { testChatsAreScopedByOwner(t, newRepo(t), uuid.NewString()) })
	t.Run("Settings", func(t *testing.T) { testSettings(t, newRepo(t), uuid.NewString()) })
}

func testUsers(t *testing.T, s Repository, prefix string) {
	ctx := context.Background()
	alice, bob := prefix+"-alice", prefix+"-bob"

	created, err := s.CreateUser(ctx, alice, "hash")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated user id")
	}

	byName, err := s.GetUserByUsername(ctx, alice)
	if err != nil || byName == nil {
		t.Fatalf("GetUserByUsername: user=%v err=%v", byName, err)
	}
	if byName.ID != created.ID || byName.PasswordHash != "hash" {
		t.Errorf("unexpected user: %+v", byName)
	}

	byID, err := s.GetUserByID(ctx, created.ID)
	if err != nil || byID == nil || byID.Username != alice {
		t.Errorf("GetUserByID: user=%v err=%v", byID, err)
	}

	missing, err := s.GetUserByUsername(ctx, bob)
	if err != nil || missing != nil {
		t.Errorf("expected (nil, nil) for unknown user, got %v, %v", missing, err)
	}

	if _, err := s.CreateUser(ctx, alice, "other"); err == nil {
		t.Error("expected duplicate username to fail")
	}
}

func testChatUpsertKeepsTitle(t *testing.T, s Repository, owner string) {
	ctx := context.Background()

	chat := &Chat{ID: 7, Owner: owner, Title: "first", Content: []byte(`{"messages": []}`)}
	if err := s.SaveChat(ctx, chat); err != nil {
		t.Fatalf("SaveChat failed: %v", err)
	}

	update := &Chat{ID: 7, Owner: owner, Title: "ignored", Content: []byte(`{"messages":[{"id":1}]}`), CreatedAt: time.Now().Add(time.Hour)}
	if err := s.SaveChat(ctx, update); err != nil {
		t.Fatalf("SaveChat update failed: %v", err)
	}

	got, err := s.GetChat(ctx, owner, 7)
	if err != nil || got == nil {
		t.Fatalf("GetChat: chat=%v err=%v", got, err)
	}
	if got.Title != "first" {
		t.Errorf("title changed on update: %q", got.Title)
	}
	if string(got.Content) != `{"messages":[{"id":1}]}` {
		t.Errorf("content not replaced: %s", got.Content)
	}
}

func testChatsAreScopedByOwner(t *testing.T, s Repository, prefix string) {
	ctx := context.Background()
	u1, u2 := prefix+"-u1", prefix+"-u2"

	for _, c := range []*Chat{
		{ID: 1, Owner: u1, Title: "a", Content: []byte(`{"messages": []}`), CreatedAt: time.Now().Add(-time.Minute)},
		{ID: 2, Owner: u1, Title: "b", Content: []byte(`{"messages": []}`), CreatedAt: time.Now()},
		{ID: 1, Owner: u2, Title: "other", Content: []byte(`{"messages": []}`)},
	} {
		if err := s.SaveChat(ctx, c); err != nil {
			t.Fatalf("SaveChat failed: %v", err)
		}
	}

	chats, err := s.ListChats(ctx, u1)
	if err != nil {
		t.Fatalf("ListChats failed: %v", err)
	}
	if len(chats) != 2 || chats[0].ID != 2 || chats[1].ID != 1 {
		t.Errorf("expected [2 1] newest first, got %+v", chats)
	}

	if got, _ := s.GetChat(ctx, u2, 2); got != nil {
		t.Errorf("u2 should not see u1's chat 2")
	}

	if err := s.DeleteChat(ctx, u1, 1); err != nil {
		t.Fatalf("DeleteChat failed: %v", err)
	}
	if err := s.DeleteChat(ctx, u1, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if got, _ := s.GetChat(ctx, u2, 1); got == nil {
		t.Error("deleting u1's chat 1 removed u2's chat 1")
	}
}

func testSettings(t *testing.T, s Repository, owner string) {
	ctx := context.Background()

	got, err := s.GetSettings(ctx, owner)
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil) before first write, got %v, %v", got, err)
	}

	in := &UserSettings{Owner: owner, LLMEndpoint: "http://llm", SearchEndpoint: "http://search", Theme: "light"}
	if err := s.UpsertSettings(ctx, in); err != nil {
		t.Fatalf("UpsertSettings failed: %v", err)
	}
	in.Theme = "dark"
	if err := s.UpsertSettings(ctx, in); err != nil {
		t.Fatalf("UpsertSettings update failed: %v", err)
	}

	got, err = s.GetSettings(ctx, owner)
	if err != nil || got == nil {
		t.Fatalf("GetSettings: %v, %v", got, err)
	}
	if *got != *in {
		t.Errorf("got %+v, want %+v", got, in)
	}

	bad := &UserSettings{Owner: owner, LLMEndpoint: "x", SearchEndpoint: "y", Theme: "purple"}
	if err := s.UpsertSettings(ctx, bad); err == nil {
		t.Error("expected theme check constraint to reject purple")
	}
}
