package realtime

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/huangang/cocode/internal/models"
)

func TestEncodeDecode_Human(t *testing.T) {
	sender := Sender{ID: "u1", Email: "a@x.com"}
	msg := NewHumanMessage("", sender, "hi")

	pm, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if pm.Message != "hi" || pm.Sender != sender || pm.Kind != KindHuman {
		t.Errorf("unexpected wire form %+v", pm)
	}

	decoded, err := Decode(pm)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	human, ok := decoded.(HumanMessage)
	if !ok {
		t.Fatalf("expected HumanMessage, got %T", decoded)
	}
	if human.ID != msg.ID || human.Text != "hi" {
		t.Errorf("round trip mismatch: %+v", human)
	}
}

func TestNewHumanMessage_KeepsValidClientID(t *testing.T) {
	id := "0b8f3c1e-6b1a-4b8e-9d6a-2f1f5d2c7e11"
	if got := NewHumanMessage(id, Sender{}, "x").ID; got != id {
		t.Errorf("ID = %q, want %q", got, id)
	}
	if got := NewHumanMessage("not-a-uuid", Sender{}, "x").ID; got == "not-a-uuid" || got == "" {
		t.Errorf("expected a generated id, got %q", got)
	}
}

func TestEncodeDecode_AIWithFileTree(t *testing.T) {
	msg := NewAIMessage("here is your server", models.FileTree{"app.js": "console.log(1)"})

	pm, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if pm.Sender.ID != AISenderID || pm.Sender.Email != AISenderEmail {
		t.Errorf("unexpected sender %+v", pm.Sender)
	}

	var body AIPayload
	if err := json.Unmarshal([]byte(pm.Message), &body); err != nil {
		t.Fatalf("AI body should be JSON: %v", err)
	}

	decoded, err := Decode(pm)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	ai, ok := decoded.(AIMessage)
	if !ok {
		t.Fatalf("expected AIMessage, got %T", decoded)
	}
	if ai.Text != "here is your server" || ai.FileTree["app.js"] != "console.log(1)" {
		t.Errorf("unexpected AI message %+v", ai)
	}
	if !ai.HasFileTree() {
		t.Error("expected HasFileTree")
	}
}

func TestDecode_LegacySenderSentinel(t *testing.T) {
	pm := ProjectMessage{Message: `{"text":"hello"}`, Sender: Sender{ID: AISenderID, Email: AISenderEmail}}
	decoded, err := Decode(pm)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if _, ok := decoded.(AIMessage); !ok {
		t.Fatalf("expected AIMessage, got %T", decoded)
	}
}

func TestDecode_MalformedAIPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "Sure! Here is some code"},
		{"truncated", `{"text":"hi","fileTree":{`},
		{"escaping path", `{"text":"hi","fileTree":{"../x.js":"boom"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Decode(ProjectMessage{Kind: KindAI, Message: tt.body, Sender: Sender{ID: AISenderID}})
			if !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
			ai, ok := decoded.(AIMessage)
			if !ok {
				t.Fatalf("expected AIMessage, got %T", decoded)
			}
			if ai.HasFileTree() {
				t.Error("malformed payload must not carry a file tree")
			}
			if ai.Text == "" {
				t.Error("malformed payload should keep displayable text")
			}
		})
	}
}

func TestParseAIReply_CodeFence(t *testing.T) {
	raw := "```json\n{\"text\":\"ok\",\"fileTree\":{\"package.json\":\"{}\"}}\n```"
	msg, err := ParseAIReply(raw)
	if err != nil {
		t.Fatalf("ParseAIReply() error = %v", err)
	}
	if msg.Text != "ok" || msg.FileTree["package.json"] != "{}" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestParseAIReply_UnmountableTreeRejected(t *testing.T) {
	raw := `{"text":"done","fileTree":{"src":"x","src/index.js":"y"}}`
	msg, err := ParseAIReply(raw)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if msg.HasFileTree() {
		t.Error("rejected tree must not be carried")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	frame, err := EncodeFrame(NewHumanMessage("", Sender{ID: "u1", Email: "a@x.com"}, "hi"))
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	pm, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if pm.Message != "hi" || pm.Sender.Email != "a@x.com" {
		t.Errorf("unexpected payload %+v", pm)
	}

	if _, err := DecodeFrame([]byte(`{"event":"other","data":{}}`)); err == nil {
		t.Error("expected error for unknown event")
	}
	if _, err := DecodeFrame([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid frame")
	}
}
