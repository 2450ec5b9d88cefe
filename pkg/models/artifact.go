package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ShayCichocki/loom/pkg/keys"
)

// Artifact is a content-addressed payload attached to a node subtree.
// Two artifacts with equal ContentHash are interchangeable, which is what
// makes template sharing and payload deduplication safe.
type Artifact struct {
	// Key addresses the artifact within its execution tree.
	Key keys.Key `json:"artifact_key"`
	// ParentKey is the enclosing artifact or node key.
	ParentKey keys.Key `json:"parent_key,omitempty"`
	// ExecutionKey is the root of the execution tree.
	ExecutionKey keys.Key `json:"execution_key"`
	// Type classifies the payload (rendered prompt, tool call, outcome, ...).
	Type string `json:"artifact_type"`
	// ContentHash is the SHA-256 hex digest of Payload.
	ContentHash string `json:"content_hash"`
	// Depth is the artifact's depth within the execution tree.
	Depth int `json:"depth"`
	// TemplateStaticID groups versions of the same template family.
	TemplateStaticID string `json:"template_static_id,omitempty"`
	// Shared marks template-family artifacts safe to reuse across trees.
	Shared bool `json:"shared,omitempty"`
	// Payload is the raw content bytes.
	Payload []byte `json:"payload,omitempty"`
	// Metadata holds free-form string annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
	// CreatedAt is when the artifact was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// HashContent returns the SHA-256 hex digest used for content addressing.
func HashContent(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// NewArtifact builds an artifact for the given payload, computing its
// content hash and depth from the key.
func NewArtifact(key, parent, execution keys.Key, artifactType string, payload []byte) Artifact {
	return Artifact{
		Key:          key,
		ParentKey:    parent,
		ExecutionKey: execution,
		Type:         artifactType,
		ContentHash:  HashContent(payload),
		Depth:        key.Depth(),
		Payload:      payload,
		Metadata:     map[string]string{},
		CreatedAt:    time.Now().UTC(),
	}
}
