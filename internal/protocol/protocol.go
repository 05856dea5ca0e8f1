package protocol

import "encoding/json"

// Header question shown on the wall until somebody sets their own.
const DefaultHeader = "What ways can we use AI?"

// Event types pushed to display clients.
const (
	TypeHello     = "hello"
	TypeIdeaNew   = "idea.new"
	TypeHeaderSet = "header.set"
)

// Idea is one submitted record. Immutable once accepted; ids are assigned by
// the server and strictly increase over the lifetime of the store.
type Idea struct {
	ID        int    `json:"id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// Event lets us route push frames by type before committing to a payload
// shape.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// HelloData is the full-state payload sent once per new subscriber.
type HelloData struct {
	Header string `json:"header"`
	Ideas  []Idea `json:"ideas"`
}

func DecodeEvent(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, err
}

func encode(typ string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: typ, Data: raw})
}

func EncodeHello(header string, ideas []Idea) ([]byte, error) {
	if ideas == nil {
		ideas = []Idea{}
	}
	return encode(TypeHello, HelloData{Header: header, Ideas: ideas})
}

func EncodeIdeaNew(idea Idea) ([]byte, error) {
	return encode(TypeIdeaNew, idea)
}

func EncodeHeaderSet(header string) ([]byte, error) {
	return encode(TypeHeaderSet, header)
}
