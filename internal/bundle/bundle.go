// Package bundle constructs, canonicalizes, hashes, and validates federation
// envelopes: the content-addressed wire format a relay sends to a peer when
// delivering a Tez to remote recipients. Payloads are signed as a distinct
// envelope type with its own canonical-JSON hash rather than a bare signed
// blob.
package bundle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/tezrelay/relay/internal/models"
)

// ProtocolVersion is the fixed envelope version this relay emits and
// accepts. A peer sending a different value fails validation.
const ProtocolVersion = "tez-federation/1"

// BundleTypeDelivery identifies the envelope's purpose. Only one kind exists today.
const BundleTypeDelivery = "federation_delivery"

// ErrInvalidBundle wraps a specific validation failure. The message names
// the first failing check, per the wire contract peers rely on.
type ErrInvalidBundle struct {
	Reason string
}

func (e *ErrInvalidBundle) Error() string {
	return fmt.Sprintf("INVALID_BUNDLE: %s", e.Reason)
}

func invalid(reason string) error {
	return &ErrInvalidBundle{Reason: reason}
}

// Bundle is the federation envelope: a Tez, its context layers, and its
// routing, content-addressed by BundleHash.
type Bundle struct {
	ProtocolVersion string             `json:"protocol_version"`
	BundleType      string             `json:"bundle_type"`
	SenderServer    string             `json:"sender_server"`
	Tez             TezPayload         `json:"tez"`
	Context         []ContextPayload   `json:"context"`
	From            string             `json:"from"`
	To              []string           `json:"to"`
	CreatedAt       time.Time          `json:"created_at"`
	BundleHash      string             `json:"bundle_hash"`
}

// TezPayload is the wire-transmitted subset of a Tez: sender-local state
// (status, timestamps bound to our own storage) is excluded.
type TezPayload struct {
	ID              string  `json:"id"`
	ThreadID        string  `json:"thread_id"`
	ParentTezID     *string `json:"parent_tez_id,omitempty"`
	SurfaceText     string  `json:"surface_text"`
	Type            string  `json:"type"`
	Urgency         string  `json:"urgency"`
	ActionRequested *string `json:"action_requested,omitempty"`
	SenderUserID    string  `json:"sender_user_id"`
	Visibility      string  `json:"visibility"`
	CreatedAt       string  `json:"created_at"`
}

// ContextPayload is a single context layer as transmitted, preserving its
// original position via slice order.
type ContextPayload struct {
	Layer       string  `json:"layer"`
	Content     string  `json:"content"`
	MimeType    *string `json:"mime_type,omitempty"`
	Confidence  *int    `json:"confidence,omitempty"`
	Source      *string `json:"source,omitempty"`
	DerivedFrom *string `json:"derived_from,omitempty"`
	CreatedBy   string  `json:"created_by"`
}

// Build assembles a Bundle for tez addressed to the given recipient
// addresses on a single remote host, computing its canonical hash.
func Build(senderServer string, tez models.Tez, context []models.TezContext, from string, to []string) Bundle {
	b := Bundle{
		ProtocolVersion: ProtocolVersion,
		BundleType:      BundleTypeDelivery,
		SenderServer:    senderServer,
		Tez:             toTezPayload(tez),
		Context:         toContextPayloads(context),
		From:            from,
		To:              append([]string(nil), to...),
		CreatedAt:       time.Now().UTC(),
	}
	b.BundleHash = Hash(b)
	return b
}

func toTezPayload(t models.Tez) TezPayload {
	var parent *string
	if t.ParentTezID != nil {
		s := t.ParentTezID.String()
		parent = &s
	}
	return TezPayload{
		ID:              t.ID.String(),
		ThreadID:        t.ThreadID.String(),
		ParentTezID:     parent,
		SurfaceText:     t.SurfaceText,
		Type:            t.Type,
		Urgency:         t.Urgency,
		ActionRequested: t.ActionRequested,
		SenderUserID:    t.SenderUserID,
		Visibility:      t.Visibility,
		CreatedAt:       t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toContextPayloads(ctx []models.TezContext) []ContextPayload {
	out := make([]ContextPayload, 0, len(ctx))
	for _, c := range ctx {
		out = append(out, ContextPayload{
			Layer:       c.Layer,
			Content:     c.Content,
			MimeType:    c.MimeType,
			Confidence:  c.Confidence,
			Source:      c.Source,
			DerivedFrom: c.DerivedFrom,
			CreatedBy:   c.CreatedBy,
		})
	}
	return out
}

// CanonicalJSON returns b encoded as canonical JSON (sorted keys, no
// insignificant whitespace), including its bundle_hash. This is the exact
// byte form persisted in OutboundDelivery.Bundle and POSTed to peers.
func CanonicalJSON(b Bundle) ([]byte, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return canonicalize(raw)
}

// Hash computes bundle_hash: hex(sha256(canonical_json(bundle_without_hash))).
func Hash(b Bundle) string {
	b.BundleHash = ""
	raw, err := json.Marshal(b)
	if err != nil {
		// Bundle is built entirely from concrete, marshalable fields;
		// a failure here indicates a programming error, not bad input.
		panic(fmt.Sprintf("bundle: marshal for hashing: %v", err))
	}
	canon, err := canonicalize(raw)
	if err != nil {
		panic(fmt.Sprintf("bundle: canonicalize for hashing: %v", err))
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

// canonicalize reorders object keys lexicographically at every depth and
// re-encodes with no insignificant whitespace. Arrays preserve order.
func canonicalize(raw []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// Validate checks structural shape, required fields, protocol version, and
// recomputes bundle_hash for equality. Returns the first failing check as
// an ErrInvalidBundle.
func Validate(b Bundle) error {
	if b.ProtocolVersion == "" {
		return invalid("missing protocol_version")
	}
	if b.ProtocolVersion != ProtocolVersion {
		return invalid("unsupported protocol_version")
	}
	if b.BundleType != BundleTypeDelivery {
		return invalid("unsupported bundle_type")
	}
	if b.SenderServer == "" {
		return invalid("missing sender_server")
	}
	if b.Tez.ID == "" {
		return invalid("missing tez.id")
	}
	if b.Tez.SurfaceText == "" {
		return invalid("missing tez.surface_text")
	}
	if b.From == "" {
		return invalid("missing from")
	}
	if len(b.To) == 0 {
		return invalid("missing to")
	}
	if b.BundleHash == "" {
		return invalid("missing bundle_hash")
	}

	if got := Hash(b); got != b.BundleHash {
		return invalid("hash mismatch")
	}
	return nil
}
