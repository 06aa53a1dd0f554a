package queue

import "encoding/json"

// ExtractionMsg asks the worker to store one page's extraction result.
// Either DocumentID names an existing page or Source and Page identify one
// to create. The result is inline or stored in the bucket under ResultKey.
type ExtractionMsg struct {
	DocumentID   int64           `json:"document_id,omitempty"`
	Source       string          `json:"source,omitempty"`
	Page         int             `json:"page,omitempty"`
	OCRText      string          `json:"ocr_text,omitempty"`
	DocumentType string          `json:"document_type,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ResultKey    string          `json:"result_key,omitempty"`
	FamilyName   string          `json:"family_name,omitempty"`
	FamilySide   string          `json:"family_side,omitempty"`
	// AutoMerge overrides reconcile.auto_merge_on_ingest when set.
	AutoMerge *bool `json:"auto_merge,omitempty"`
}

// ReconcileMsg requests a reconciliation run.
type ReconcileMsg struct {
	MergedBy  string `json:"merged_by,omitempty"`
	MaxMerges int    `json:"max_merges,omitempty"`
}

type DeleteMsg struct {
	DocumentID int64 `json:"document_id"`
	// FileKey is removed from the bucket after the store delete commits.
	FileKey string `json:"file_key,omitempty"`
}
