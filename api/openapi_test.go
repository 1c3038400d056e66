package api

import (
	"context"
	"encoding/json"
	"testing"
)

func TestLoadValidatesEmbeddedDocument(t *testing.T) {
	doc, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for _, path := range []string{"/v1/invoices/analyze", "/v1/batches/{batch_id}", "/v1/invoices/export", "/v1/chat/{session_id}"} {
		if doc.Paths.Find(path) == nil {
			t.Fatalf("path %s missing from document", path)
		}
	}
}

func TestJSONIsServable(t *testing.T) {
	data, err := JSON(context.Background())
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["openapi"] != "3.0.3" {
		t.Fatalf("openapi version = %v", decoded["openapi"])
	}
}
