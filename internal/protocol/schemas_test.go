package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"ideawall.live/internal/protocol"
)

func TestSchemas_ValidateEncodedFrames(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, frame []byte) {
		t.Helper()
		var v any
		if err := json.Unmarshal(frame, &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	ideaNewSchema := compile("idea_new.schema.json")
	headerSetSchema := compile("header_set.schema.json")

	idea := protocol.Idea{ID: 1, Author: "Avery", Text: "Use AI for X", CreatedAt: "2025-06-01T10:00:00"}

	hello, err := protocol.EncodeHello("What ways can we use AI?", []protocol.Idea{idea})
	if err != nil {
		t.Fatalf("encode hello: %v", err)
	}
	validate(helloSchema, hello)

	// An empty wall still produces a valid hello with ideas present as [].
	empty, err := protocol.EncodeHello(protocol.DefaultHeader, nil)
	if err != nil {
		t.Fatalf("encode empty hello: %v", err)
	}
	validate(helloSchema, empty)

	frame, err := protocol.EncodeIdeaNew(idea)
	if err != nil {
		t.Fatalf("encode idea.new: %v", err)
	}
	validate(ideaNewSchema, frame)

	frame, err = protocol.EncodeHeaderSet("Fresh question")
	if err != nil {
		t.Fatalf("encode header.set: %v", err)
	}
	validate(headerSetSchema, frame)
}
