package httpapi

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// The wire messages are the JSON DTOs in package types.  Protobuf clients
// get the same field names inside a google.protobuf.Struct.

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("toStruct marshal: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("toStruct: %w", err)
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into dst using dst's JSON field names.
func fromStruct(s *structpb.Struct, dst any) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("fromStruct marshal: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("fromStruct: %w", err)
	}
	return nil
}
