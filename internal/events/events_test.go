package events

import (
	"encoding/json"
	"testing"
)

func TestEventMarshal(t *testing.T) {
	data, _ := json.Marshal(map[string]string{"message": "hello"})
	event := Event{
		Type:           "TEZ_SHARED",
		TeamID:         "team123",
		ConversationID: "conv456",
		UserID:         "user789",
		Data:           data,
	}

	encoded, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if decoded.Type != "TEZ_SHARED" {
		t.Errorf("type = %q, want %q", decoded.Type, "TEZ_SHARED")
	}
	if decoded.TeamID != "team123" {
		t.Errorf("team_id = %q, want %q", decoded.TeamID, "team123")
	}
	if decoded.ConversationID != "conv456" {
		t.Errorf("conversation_id = %q, want %q", decoded.ConversationID, "conv456")
	}
	if decoded.UserID != "user789" {
		t.Errorf("user_id = %q, want %q", decoded.UserID, "user789")
	}

	var payload map[string]string
	if err := json.Unmarshal(decoded.Data, &payload); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if payload["message"] != "hello" {
		t.Errorf("data.message = %q, want %q", payload["message"], "hello")
	}
}

func TestEventMarshal_EmptyOptionals(t *testing.T) {
	data, _ := json.Marshal(nil)
	event := Event{
		Type: "TEZ_RECEIVED",
		Data: data,
	}

	encoded, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	str := string(encoded)
	if contains(str, `"team_id"`) {
		t.Error("empty team_id should be omitted")
	}
	if contains(str, `"conversation_id"`) {
		t.Error("empty conversation_id should be omitted")
	}
	if contains(str, `"user_id"`) {
		t.Error("empty user_id should be omitted")
	}
}

func TestSubjectConstants(t *testing.T) {
	subjects := []string{
		SubjectTezShared, SubjectTezReplied, SubjectTezReceived, SubjectFederationRetry,
	}

	for _, s := range subjects {
		if s == "" {
			t.Error("empty subject constant")
		}
	}
	if SubjectTezShared != "tez.shared" {
		t.Errorf("SubjectTezShared = %q, want %q", SubjectTezShared, "tez.shared")
	}
	if SubjectTezReplied != "tez.replied" {
		t.Errorf("SubjectTezReplied = %q, want %q", SubjectTezReplied, "tez.replied")
	}
	if SubjectTezReceived != "tez.received" {
		t.Errorf("SubjectTezReceived = %q, want %q", SubjectTezReceived, "tez.received")
	}
}

func TestEventJSON_Tags(t *testing.T) {
	data := []byte(`{"t":"TEST","team_id":"t","conversation_id":"c","user_id":"u","d":{"key":"val"}}`)
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if event.Type != "TEST" {
		t.Errorf("Type = %q, want %q", event.Type, "TEST")
	}
	if event.TeamID != "t" {
		t.Errorf("TeamID = %q, want %q", event.TeamID, "t")
	}
	if event.ConversationID != "c" {
		t.Errorf("ConversationID = %q, want %q", event.ConversationID, "c")
	}
	if event.UserID != "u" {
		t.Errorf("UserID = %q, want %q", event.UserID, "u")
	}
}

func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
