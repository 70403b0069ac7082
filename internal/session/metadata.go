package session

import (
	"encoding/json"
	"fmt"

	"github.com/kenneth/redaction-gateway/internal/document"
)

// EncryptedItem is one sealed PII item as persisted in the metadata store.
// The bounding box is page geometry, not sensitive, and stays in the clear.
type EncryptedItem struct {
	EncryptedText string        `json:"encrypted_text"`
	BBox          document.BBox `json:"bbox"`
}

// EncryptedPages is the stored shape of a session's extracted items, keyed by
// page number. This is the only state the gateway persists.
type EncryptedPages struct {
	Pages map[string][]EncryptedItem `json:"pages"`
}

// Item is one recovered PII item returned to an authorized caller.
type Item struct {
	Text string        `json:"text"`
	BBox document.BBox `json:"bbox"`
}

func encodeMetadata(meta *EncryptedPages) ([]byte, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session metadata: %w", err)
	}
	return data, nil
}

func decodeMetadata(data []byte) (*EncryptedPages, error) {
	var meta EncryptedPages
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode session metadata: %w", err)
	}
	return &meta, nil
}
