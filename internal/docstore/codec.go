package docstore

import "encoding/json"

// Codec turns documents into backend payloads and back. The repository treats
// payloads as opaque; it only requires Decode(Encode(v)) to round-trip.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSON is the default codec. Field naming follows the snake_case struct tags
// on the document types; zero-valued metadata fields are omitted.
var JSON Codec = jsonCodec{}

type jsonCodec struct{}

func (jsonCodec) Encode(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }
