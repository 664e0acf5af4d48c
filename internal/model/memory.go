package model

import (
	"encoding/json"
	"time"
)

// MemoryChunk is one Tier-1 memory: a distilled summary of a bounded
// range of raw chat messages, embedded for similarity search. The
// start/end ids link back to the exact transcript window the summary was
// derived from so retrieval can re-expand it.
type MemoryChunk struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"userId"`
	SessionID      string    `db:"session_id" json:"sessionId"`
	SummaryText    string    `db:"summary_text" json:"summaryText"`
	Embedding      Vector    `db:"embedding" json:"-"`
	StartMessageID *string   `db:"start_message_id" json:"startMessageId,omitempty"`
	EndMessageID   *string   `db:"end_message_id" json:"endMessageId,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// MatchedChunk is a MemoryChunk plus the similarity score assigned by
// the vector search.
type MatchedChunk struct {
	MemoryChunk
	Similarity float64 `db:"similarity" json:"similarity"`
}

type CreateMemoryChunkParams struct {
	UserID         string
	SessionID      string
	SummaryText    string
	Embedding      Vector
	StartMessageID *string
	EndMessageID   *string
}

// PersonalVector is a flat-tier memory: user-curated distilled content
// with no transcript back-links. Editable; edits re-embed.
type PersonalVector struct {
	ID        string          `db:"id" json:"id"`
	UserID    string          `db:"user_id" json:"userId"`
	Content   string          `db:"content" json:"content"`
	Embedding Vector          `db:"embedding" json:"-"`
	Metadata  json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

type MatchedVector struct {
	PersonalVector
	Similarity float64 `db:"similarity" json:"similarity"`
}

type CreatePersonalVectorParams struct {
	UserID    string
	Content   string
	Embedding Vector
	Metadata  json.RawMessage
}
