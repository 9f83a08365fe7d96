package search

import (
	"encoding/json"
	"testing"
)

func TestDocument_JSON_OmitEmptyTeamID(t *testing.T) {
	doc := Document{
		ID:           "01HX000000000000000000TEZ",
		SurfaceText:  "ship the thing",
		SenderUserID: "01HX000000000000000000USR",
		CreatedAt:    1707566400,
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if _, exists := data["teamId"]; exists {
		t.Error("teamId should be omitted when empty")
	}
	if data["surfaceText"] != doc.SurfaceText {
		t.Errorf("surfaceText = %v, want %q", data["surfaceText"], doc.SurfaceText)
	}
}

func TestDocument_JSON_WithTeamID(t *testing.T) {
	doc := Document{ID: "t1", TeamID: "team1", SurfaceText: "x", SenderUserID: "u1"}

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if data["teamId"] != "team1" {
		t.Errorf("teamId = %v, want %q", data["teamId"], "team1")
	}
}

func TestParseHitIDs(t *testing.T) {
	hits := []interface{}{
		map[string]interface{}{"id": "a", "surfaceText": "hi"},
		map[string]interface{}{"id": "b"},
		map[string]interface{}{"surfaceText": "no id field"},
		"not even a map",
	}

	ids := parseHitIDs(hits)
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("ids = %v, want [a b]", ids)
	}
}

func TestParseHitIDs_Empty(t *testing.T) {
	ids := parseHitIDs(nil)
	if len(ids) != 0 {
		t.Fatalf("ids = %v, want empty", ids)
	}
}
