package models

import (
	"encoding/json"
	"time"
)

// Team roles.
const (
	TeamRoleAdmin  = "admin"
	TeamRoleMember = "member"
)

// Team is a group of users sharing team-scoped Tez. Corresponds to the teams
// table.
type Team struct {
	ID        ID        `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TeamMember is the membership row for a (team, user) pair. Primary key is
// the pair; corresponds to the team_members table.
type TeamMember struct {
	TeamID   ID        `json:"teamId"`
	UserID   string    `json:"userId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Conversation types.
const (
	ConversationDM    = "dm"
	ConversationGroup = "group"
)

// Conversation is a DM or group envelope, orthogonal to teams. Corresponds to
// the conversations table.
type Conversation struct {
	ID        ID        `json:"id"`
	Type      string    `json:"type"`
	Name      *string   `json:"name,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConversationMember is the membership row for a (conversation, user) pair.
// LastReadAt is null until the member's first read. Corresponds to the
// conversation_members table.
type ConversationMember struct {
	ConversationID ID         `json:"conversationId"`
	UserID         string     `json:"userId"`
	JoinedAt       time.Time  `json:"joinedAt"`
	LastReadAt     *time.Time `json:"lastReadAt,omitempty"`
}

// Contact statuses.
const (
	ContactStatusActive  = "active"
	ContactStatusPending = "pending"
)

// Contact is a local user registered so they can receive federated Tez.
// Corresponds to the contacts table. ID equals the userId.
type Contact struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       *string   `json:"email,omitempty"`
	AvatarURL   *string   `json:"avatarUrl,omitempty"`
	TezAddress  string    `json:"tezAddress"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PublicProfile is the subset of Contact fields shared with other actors —
// email is intentionally omitted.
type PublicProfile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	AvatarURL   *string   `json:"avatarUrl,omitempty"`
	TezAddress  string    `json:"tezAddress"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ToPublicProfile strips the email field for sharing with other actors.
func (c Contact) ToPublicProfile() PublicProfile {
	return PublicProfile{
		ID:          c.ID,
		DisplayName: c.DisplayName,
		AvatarURL:   c.AvatarURL,
		TezAddress:  c.TezAddress,
		CreatedAt:   c.CreatedAt,
	}
}

// Tez types.
const (
	TezTypeNote     = "note"
	TezTypeDecision = "decision"
	TezTypeHandoff  = "handoff"
	TezTypeQuestion = "question"
	TezTypeUpdate   = "update"
)

// TezTypes lists all valid Tez.Type values.
var TezTypes = []string{TezTypeNote, TezTypeDecision, TezTypeHandoff, TezTypeQuestion, TezTypeUpdate}

// Tez urgency levels.
const (
	UrgencyCritical = "critical"
	UrgencyHigh     = "high"
	UrgencyNormal   = "normal"
	UrgencyLow      = "low"
	UrgencyFYI      = "fyi"
)

// Urgencies lists all valid Tez.Urgency values.
var Urgencies = []string{UrgencyCritical, UrgencyHigh, UrgencyNormal, UrgencyLow, UrgencyFYI}

// Tez visibility.
const (
	VisibilityTeam    = "team"
	VisibilityDM      = "dm"
	VisibilityPrivate = "private"
)

// Tez status.
const (
	TezStatusActive   = "active"
	TezStatusArchived = "archived"
	TezStatusDeleted  = "deleted"
)

// Tez is a context-rich message: a short surface payload plus an ordered bag
// of typed context layers. The unit of delivery and persistence. Corresponds
// to the tez table.
type Tez struct {
	ID              ID        `json:"id"`
	TeamID          *ID       `json:"teamId,omitempty"`
	ConversationID  *ID       `json:"conversationId,omitempty"`
	ThreadID        ID        `json:"threadId"`
	ParentTezID     *ID       `json:"parentTezId,omitempty"`
	SurfaceText     string    `json:"surfaceText"`
	Type            string    `json:"type"`
	Urgency         string    `json:"urgency"`
	ActionRequested *string   `json:"actionRequested,omitempty"`
	SenderUserID    string    `json:"senderUserId"`
	Visibility      string    `json:"visibility"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// IsRoot reports whether t is the root of its thread.
func (t Tez) IsRoot() bool {
	return t.ParentTezID == nil
}

// TezContext layers.
const (
	LayerBackground   = "background"
	LayerFact         = "fact"
	LayerArtifact     = "artifact"
	LayerRelationship = "relationship"
	LayerConstraint   = "constraint"
	LayerHint         = "hint"
)

// Layers lists all valid TezContext.Layer values.
var Layers = []string{LayerBackground, LayerFact, LayerArtifact, LayerRelationship, LayerConstraint, LayerHint}

// Fact provenance sources.
const (
	SourceStated   = "stated"
	SourceInferred = "inferred"
	SourceVerified = "verified"
)

// Sources lists all valid TezContext.Source values.
var Sources = []string{SourceStated, SourceInferred, SourceVerified}

// SystemCreator is the sentinel CreatedBy value for context layers produced
// by inbound federation ingestion rather than a human actor.
const SystemCreator = "system"

// TezContext is one typed item in a Tez's context bag. Corresponds to the
// tez_context table.
type TezContext struct {
	ID           ID        `json:"id"`
	TezID        ID        `json:"tezId"`
	Layer        string    `json:"layer"`
	Content      string    `json:"content"`
	MimeType     *string   `json:"mimeType,omitempty"`
	Confidence   *int      `json:"confidence,omitempty"`
	Source       *string   `json:"source,omitempty"`
	DerivedFrom  *string   `json:"derivedFrom,omitempty"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TezRecipient is a delivery/read/ack cursor for one (tez, user) pair.
// Corresponds to the tez_recipients table.
type TezRecipient struct {
	TezID          ID         `json:"tezId"`
	UserID         string     `json:"userId"`
	DeliveredAt    time.Time  `json:"deliveredAt"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
}

// Peer trust levels.
const (
	TrustPending = "pending"
	TrustTrusted = "trusted"
	TrustBlocked = "blocked"
)

// Peer is another relay instance identified by host and public key.
// Corresponds to the peers table.
type Peer struct {
	Host                   string     `json:"host"`
	ServerID               string     `json:"serverId"`
	PublicKey              string     `json:"publicKey"`
	DisplayName            *string    `json:"displayName,omitempty"`
	TrustLevel             string     `json:"trustLevel"`
	FirstSeenAt            time.Time  `json:"firstSeenAt"`
	LastDeliveryAttemptAt  *time.Time `json:"lastDeliveryAttemptAt,omitempty"`
	ConsecutiveFailures    int        `json:"consecutiveFailures"`
}

// Outbound delivery statuses.
const (
	DeliveryQueued   = "queued"
	DeliveryInFlight = "in_flight"
	DeliverySent     = "sent"
	DeliveryFailed   = "failed"
)

// OutboundDelivery is one queued federation bundle addressed to a remote
// host. Corresponds to the outbound_deliveries table.
type OutboundDelivery struct {
	ID            ID        `json:"id"`
	TargetHost    string    `json:"targetHost"`
	Bundle        string    `json:"bundle"` // canonical JSON
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"nextAttemptAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Audit action names recorded for every mutating operation.
const (
	ActionTezShared           = "tez.shared"
	ActionTezReplied          = "tez.replied"
	ActionTezRead             = "tez.read"
	ActionTezReceived         = "tez.received"
	ActionTezAcknowledged     = "tez.acknowledged"
	ActionTezArchived         = "tez.archived"
	ActionTezDeleted          = "tez.deleted"
	ActionTeamCreated         = "team.created"
	ActionTeamMemberAdded     = "team.member_added"
	ActionTeamMemberRemoved   = "team.member_removed"
	ActionContactRegistered   = "contact.registered"
	ActionContactUpdated      = "contact.updated"
	ActionPeerTrusted         = "peer.trusted"
	ActionPeerBlocked         = "peer.blocked"
	ActionPeerRemoved         = "peer.removed"
)

// AuditEntry is one immutable journal row. Corresponds to the audit_entries
// table.
type AuditEntry struct {
	ID           ID              `json:"id"`
	TeamID       *ID             `json:"teamId,omitempty"`
	ActorUserID  string          `json:"actorUserId"`
	Action       string          `json:"action"`
	TargetType   string          `json:"targetType"`
	TargetID     string          `json:"targetId"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}
