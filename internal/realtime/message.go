package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/huangang/cocode/internal/models"
)

// EventProjectMessage is the only event carried on a project channel.
const EventProjectMessage = "project-message"

// The AI participant's reserved identity.
const (
	AISenderID    = "ai"
	AISenderEmail = "AI"
)

const (
	KindHuman = "human"
	KindAI    = "ai"
)

// ErrMalformedPayload marks an AI message whose body is not the expected JSON.
var ErrMalformedPayload = errors.New("malformed AI payload")

type Sender struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
}

// ProjectMessage is the wire shape of a project-message event.
type ProjectMessage struct {
	ID      string `json:"id,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Sender  Sender `json:"sender"`
}

// Envelope frames every websocket message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// AIPayload is the structured body the model is asked to return.
type AIPayload struct {
	Text     string          `json:"text"`
	FileTree models.FileTree `json:"fileTree,omitempty"`
}

// ChatMessage is either a HumanMessage or an AIMessage.
type ChatMessage interface {
	MessageID() string
	From() Sender
	Body() string
	isChatMessage()
}

type HumanMessage struct {
	ID     string
	Sender Sender
	Text   string
}

func NewHumanMessage(id string, sender Sender, text string) HumanMessage {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	return HumanMessage{ID: id, Sender: sender, Text: text}
}

func (m HumanMessage) MessageID() string { return m.ID }
func (m HumanMessage) From() Sender      { return m.Sender }
func (m HumanMessage) Body() string      { return m.Text }
func (HumanMessage) isChatMessage()      {}

// AIMessage is a reply from the model. FileTree is nil when the reply carries no code.
type AIMessage struct {
	ID       string
	Text     string
	FileTree models.FileTree
}

func NewAIMessage(text string, tree models.FileTree) AIMessage {
	return AIMessage{ID: uuid.NewString(), Text: text, FileTree: tree}
}

func (m AIMessage) MessageID() string { return m.ID }
func (m AIMessage) From() Sender      { return Sender{ID: AISenderID, Email: AISenderEmail} }
func (m AIMessage) Body() string      { return m.Text }
func (AIMessage) isChatMessage()      {}

// HasFileTree reports whether the reply should replace the working tree.
func (m AIMessage) HasFileTree() bool {
	return len(m.FileTree) > 0
}

// ParseAIReply turns raw model output into an AIMessage. On malformed output
// the raw text is kept as the message text and ErrMalformedPayload is returned.
func ParseAIReply(raw string) (AIMessage, error) {
	msg := AIMessage{ID: uuid.NewString(), Text: raw}

	var payload AIPayload
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &payload); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	msg.Text = payload.Text
	if len(payload.FileTree) > 0 {
		if err := payload.FileTree.Validate(); err != nil {
			return msg, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		msg.FileTree = payload.FileTree
	}
	return msg, nil
}

// stripCodeFence removes a ```json fence some models wrap around JSON output.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(t), "```")
}

// Encode builds the wire form. AI replies are sent as a JSON string body.
func Encode(m ChatMessage) (ProjectMessage, error) {
	switch msg := m.(type) {
	case HumanMessage:
		return ProjectMessage{ID: msg.ID, Kind: KindHuman, Message: msg.Text, Sender: msg.Sender}, nil
	case AIMessage:
		body, err := json.Marshal(AIPayload{Text: msg.Text, FileTree: msg.FileTree})
		if err != nil {
			return ProjectMessage{}, err
		}
		return ProjectMessage{ID: msg.ID, Kind: KindAI, Message: string(body), Sender: msg.From()}, nil
	default:
		return ProjectMessage{}, fmt.Errorf("unsupported chat message %T", m)
	}
}

// Decode decides the variant of a received message once, at the boundary.
// A malformed AI body still yields an AIMessage carrying the raw text,
// together with an error wrapping ErrMalformedPayload.
func Decode(pm ProjectMessage) (ChatMessage, error) {
	kind := pm.Kind
	if kind == "" && pm.Sender.ID == AISenderID {
		kind = KindAI
	}

	if kind != KindAI {
		return HumanMessage{ID: pm.ID, Sender: pm.Sender, Text: pm.Message}, nil
	}

	msg, err := ParseAIReply(pm.Message)
	if pm.ID != "" {
		msg.ID = pm.ID
	}
	return msg, err
}

// EncodeFrame wraps a chat message into a project-message frame.
func EncodeFrame(m ChatMessage) ([]byte, error) {
	pm, err := Encode(m)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(pm)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: EventProjectMessage, Data: data})
}

// DecodeFrame parses a frame into its project-message payload.
func DecodeFrame(frame []byte) (ProjectMessage, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return ProjectMessage{}, fmt.Errorf("decode frame: %w", err)
	}
	if env.Event != EventProjectMessage {
		return ProjectMessage{}, fmt.Errorf("unsupported event %q", env.Event)
	}
	var pm ProjectMessage
	if err := json.Unmarshal(env.Data, &pm); err != nil {
		return ProjectMessage{}, fmt.Errorf("decode %s: %w", EventProjectMessage, err)
	}
	return pm, nil
}
