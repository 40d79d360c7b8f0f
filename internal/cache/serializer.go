package cache

import "encoding/json"

// Serializer converts typed values to and from the bytes stored by a Backend.
type Serializer interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSONSerializer stores values as JSON, readable from any language.
type JSONSerializer struct{}

// Encode marshals v as JSON.
func (JSONSerializer) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode unmarshals JSON data into v.
func (JSONSerializer) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
