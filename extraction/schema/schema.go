package schema

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Generate reflects T into a JSON Schema document with every object closed
// (additionalProperties=false) and definitions inlined.
func Generate[T any]() (map[string]interface{}, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	var v T
	s := reflector.Reflect(v)
	m, err := schemaToMap(s)
	if err != nil {
		return nil, err
	}
	closeObjects(m)
	return m, nil
}

func schemaToMap(s *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	itemsKey                = "items"
)

func closeObjects(s map[string]interface{}) {
	if t, ok := s[typeKey].(string); ok && t == "object" {
		if _, set := s[additionalPropertiesKey]; !set {
			s[additionalPropertiesKey] = false
		}
	}

	if properties, ok := s[propertiesKey].(map[string]interface{}); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]interface{}); ok {
				closeObjects(propMap)
			}
		}
	}

	if items, ok := s[itemsKey].(map[string]interface{}); ok {
		closeObjects(items)
	}
}
