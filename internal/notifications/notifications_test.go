package notifications

import (
	"encoding/json"
	"testing"

	"github.com/tezrelay/relay/internal/models"
)

func TestService_Enabled(t *testing.T) {
	cases := []struct {
		name    string
		pub     string
		priv    string
		enabled bool
	}{
		{"both set", "pub", "priv", true},
		{"missing private key", "pub", "", false},
		{"missing public key", "", "priv", false},
		{"neither set", "", "", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := New(nil, c.pub, c.priv, "admin@example.com", nil)
			if got := s.Enabled(); got != c.enabled {
				t.Errorf("Enabled() = %v, want %v", got, c.enabled)
			}
		})
	}
}

func TestTezPayload_JSON(t *testing.T) {
	tez := models.Tez{
		ID:           models.NewID(),
		ThreadID:     models.NewID(),
		SurfaceText:  "deploy is blocked on review",
		Urgency:      models.UrgencyHigh,
		SenderUserID: "user_123",
	}

	payload := TezPayload{
		TezID:        tez.ID.String(),
		ThreadID:     tez.ThreadID.String(),
		SenderUserID: tez.SenderUserID,
		Urgency:      tez.Urgency,
		SurfaceText:  tez.SurfaceText,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshaling payload: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if decoded["tezId"] != tez.ID.String() {
		t.Errorf("tezId = %q, want %q", decoded["tezId"], tez.ID.String())
	}
	if decoded["surfaceText"] != tez.SurfaceText {
		t.Errorf("surfaceText = %q, want %q", decoded["surfaceText"], tez.SurfaceText)
	}
}
