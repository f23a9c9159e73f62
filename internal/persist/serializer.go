package persist

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Serializer converts records to and from their stored form.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// Ext is the file extension used by file-based backends.
	Ext() string
}

// JSONSerializer stores records as indented JSON.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") }

func (JSONSerializer) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSONSerializer) Ext() string { return ".json" }

// YAMLSerializer stores records as YAML documents.
type YAMLSerializer struct{}

func (YAMLSerializer) Marshal(v any) ([]byte, error) { return yaml.Marshal(v) }

func (YAMLSerializer) Unmarshal(data []byte, v any) error { return yaml.Unmarshal(data, v) }

func (YAMLSerializer) Ext() string { return ".yaml" }

// SerializerFor returns the serializer for a configured format name.
func SerializerFor(format string) (Serializer, error) {
	switch format {
	case "", "json":
		return JSONSerializer{}, nil
	case "yaml":
		return YAMLSerializer{}, nil
	default:
		return nil, fmt.Errorf("persist: unknown format %q (want json or yaml)", format)
	}
}
