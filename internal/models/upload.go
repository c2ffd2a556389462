package models

import (
	"time"

	"github.com/markdave123-py/prescodata/internal/core"
)

// UploadMetadata summarises the latest upload into a collection.
type UploadMetadata struct {
	UploadID         string    `json:"uploadId"`
	CollectionName   string    `json:"collectionName"`
	OriginalFileName string    `json:"originalFileName"`
	TotalRows        int       `json:"totalRows"`
	FailedRows       int       `json:"failedRows"`
	Fields           []string  `json:"fields"`
	UploadedAt       time.Time `json:"uploadedAt"`
	UploadedBy       string    `json:"uploadedBy"`
	ArchiveKey       string    `json:"archiveKey,omitempty"`
}

func (m *UploadMetadata) ToDocument() core.Document {
	fields := make([]any, len(m.Fields))
	for i, f := range m.Fields {
		fields[i] = f
	}
	return core.Document{
		"uploadId":         m.UploadID,
		"collectionName":   m.CollectionName,
		"originalFileName": m.OriginalFileName,
		"totalRows":        int64(m.TotalRows),
		"failedRows":       int64(m.FailedRows),
		"fields":           fields,
		"uploadedAt":       m.UploadedAt,
		"uploadedBy":       m.UploadedBy,
		"archiveKey":       m.ArchiveKey,
	}
}

// UploadMetadataFromDocument rebuilds metadata from its stored form.
func UploadMetadataFromDocument(doc core.Document) *UploadMetadata {
	m := &UploadMetadata{
		UploadID:         stringField(doc, "uploadId"),
		CollectionName:   stringField(doc, "collectionName"),
		OriginalFileName: stringField(doc, "originalFileName"),
		Fields:           toStrings(doc["fields"]),
		UploadedBy:       stringField(doc, "uploadedBy"),
		ArchiveKey:       stringField(doc, "archiveKey"),
	}
	if n, ok := core.AsInt64(doc["totalRows"]); ok {
		m.TotalRows = int(n)
	}
	if n, ok := core.AsInt64(doc["failedRows"]); ok {
		m.FailedRows = int(n)
	}
	m.UploadedAt, _ = core.AsTime(doc["uploadedAt"])
	return m
}
