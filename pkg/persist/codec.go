package persist

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Codec encodes snapshot documents.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error

	// Extension is the conventional file suffix, including the dot.
	Extension() string

	// ContentType is the MIME type of the encoding.
	ContentType() string
}

var (
	// JSON encodes indented JSON.
	JSON Codec = jsonCodec{}

	// YAML encodes YAML documents.
	YAML Codec = yamlCodec{}
)

// CodecFor returns the codec named "json" or "yaml" (also "yml").
func CodecFor(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON, true
	case "yaml", "yml":
		return YAML, true
	}
	return nil, false
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Extension() string {
	return ".json"
}

func (jsonCodec) ContentType() string {
	return "application/json"
}

type yamlCodec struct{}

func (yamlCodec) Marshal(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

func (yamlCodec) Unmarshal(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

func (yamlCodec) Extension() string {
	return ".yaml"
}

func (yamlCodec) ContentType() string {
	return "application/yaml"
}
