// Package search integrates with Meilisearch to provide full-text search
// over shared Tez. It handles index bootstrap, document indexing on share/
// reply/inbound admission, and relevance-ordered query execution; ACL
// re-checking of hits against the caller happens one layer up in
// internal/messaging, since the index itself may contain Tez the caller
// cannot see.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meilisearch/meilisearch-go"
)

// Document is the Meilisearch-indexed projection of a Tez. Only the fields
// search and filtering need are carried; the authoritative row lives in
// Postgres and is re-fetched on hit hydration.
type Document struct {
	ID           string `json:"id"`
	TeamID       string `json:"teamId,omitempty"`
	SurfaceText  string `json:"surfaceText"`
	SenderUserID string `json:"senderUserId"`
	CreatedAt    int64  `json:"createdAt"`
}

const indexUID = "tez"

// Service wraps a Meilisearch index dedicated to Tez surface text.
type Service struct {
	client meilisearch.ServiceManager
	index  meilisearch.IndexManager
	logger *slog.Logger
}

// New connects to Meilisearch at url and ensures the tez index exists with
// teamId configured as a filterable attribute (so queries can be scoped to
// a team without a full table scan on the index side).
func New(url, apiKey string, logger *slog.Logger) (*Service, error) {
	client := meilisearch.New(url, meilisearch.WithAPIKey(apiKey))

	if _, err := client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        indexUID,
		PrimaryKey: "id",
	}); err != nil {
		logger.Debug("search index already exists or create deferred", slog.String("error", err.Error()))
	}

	index := client.Index(indexUID)
	if _, err := index.UpdateFilterableAttributes(&[]string{"teamId"}); err != nil {
		return nil, fmt.Errorf("search: configuring filterable attributes: %w", err)
	}

	return &Service{client: client, index: index, logger: logger}, nil
}

// IndexTez upserts doc into the index. Called best-effort after a Tez is
// committed to Postgres; a failure here must never fail the share/reply/
// admission transaction it follows.
func (s *Service) IndexTez(_ context.Context, doc Document) error {
	_, err := s.index.AddDocuments([]Document{doc}, "id")
	if err != nil {
		return fmt.Errorf("search: indexing tez %s: %w", doc.ID, err)
	}
	return nil
}

// SearchIDs runs query against the index, optionally scoped to teamID, and
// returns matching Tez ids in relevance order. Callers are responsible for
// re-checking ACL on every id before returning hydrated results to a
// caller — the index holds Tez across every team, not just the caller's.
func (s *Service) SearchIDs(query string, teamID *string, limit, offset int) ([]string, error) {
	req := &meilisearch.SearchRequest{
		Limit:  int64(limit),
		Offset: int64(offset),
	}
	if teamID != nil {
		req.Filter = fmt.Sprintf("teamId = %q", *teamID)
	}

	resp, err := s.index.Search(query, req)
	if err != nil {
		return nil, fmt.Errorf("search: querying %q: %w", query, err)
	}

	return parseHitIDs(resp.Hits), nil
}

// parseHitIDs extracts the "id" field from each raw Meilisearch hit,
// preserving relevance order and skipping any hit missing a string id.
func parseHitIDs(hits []interface{}) []string {
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		m, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := m["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
