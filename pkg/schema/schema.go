// Package schema reflects JSON schemas of tool inputs from Go types.
package schema

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	cache   = make(map[reflect.Type]*Schema)
	cacheMu sync.Mutex
)

// Schema of a tool input.
type Schema struct {
	RawSchema *jsonschema.Schema
	// Parameters is the object schema with the definitions inlined.
	Parameters *jsonschema.Schema
}

// New creates a new schema from the given type
func New(t reflect.Type) (*Schema, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if s, ok := cache[t]; ok {
		return s, nil
	}

	raw := JSONSchema(t)
	params, err := ToFunctionSchema(raw)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to build schema for %s", t.Name())
	}
	s := &Schema{
		RawSchema:  raw,
		Parameters: params,
	}
	cache[t] = s
	return s, nil
}

// For returns the schema of T.
func For[T any]() (*Schema, error) {
	return New(reflect.TypeOf((*T)(nil)).Elem())
}

func (s *Schema) String() string {
	js, _ := json.MarshalIndent(s.Parameters, "", "\t")
	return string(js)
}

// JSON returns the parameters schema as raw JSON.
func (s *Schema) JSON() (json.RawMessage, error) {
	js, err := json.Marshal(s.Parameters)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return js, nil
}

// ToFunctionSchema returns the top level object of the schema,
// with references to the definitions resolved.
func ToFunctionSchema(tSchema *jsonschema.Schema) (*jsonschema.Schema, error) {
	refID := strings.TrimPrefix(tSchema.Ref, "#/$defs/")

	defs := make(map[string]*jsonschema.Schema)
	root := tSchema
	for name, def := range tSchema.Definitions {
		if name == refID {
			root = def
		} else {
			defs[name] = def
		}
	}

	res := &jsonschema.Schema{
		Type:       root.Type,
		Properties: root.Properties,
		Required:   root.Required,
	}
	if res.Properties == nil {
		res.Properties = orderedmap.New[string, *jsonschema.Schema]()
	}
	if err := resolveRefs(res.Properties, defs); err != nil {
		return nil, err
	}
	return res, nil
}

func resolveRefs(props *orderedmap.OrderedMap[string, *jsonschema.Schema], defs map[string]*jsonschema.Schema) error {
	for pair := props.Oldest(); pair != nil; pair = pair.Next() {
		child := pair.Value
		if child.Ref != "" {
			def, ok := defs[strings.TrimPrefix(child.Ref, "#/$defs/")]
			if !ok {
				return errors.Errorf("definition %s not found", child.Ref)
			}
			pair.Value = def
			child = def
		}
		if child.Properties != nil {
			if err := resolveRefs(child.Properties, defs); err != nil {
				return err
			}
		}
		if child.Items != nil && child.Items.Ref != "" {
			def, ok := defs[strings.TrimPrefix(child.Items.Ref, "#/$defs/")]
			if !ok {
				return errors.Errorf("definition %s not found", child.Items.Ref)
			}
			child.Items = def
		}
	}
	return nil
}

// JSONSchema returns the JSON schema of the type.
func JSONSchema(t reflect.Type) *jsonschema.Schema {
	r := new(jsonschema.Reflector)
	r.ExpandedStruct = true
	r.DoNotReference = true
	r.AllowAdditionalProperties = true

	// types with the same name in different packages get distinct definitions
	r.Namer = func(t reflect.Type) string {
		name := t.Name()
		if t.Kind() == reflect.Struct {
			fullname := t.PkgPath() + "/" + t.Name()
			name = t.Name() + "@" + strconv.FormatUint(xxhash.Sum64String(fullname), 10)
		}
		return name
	}

	return r.ReflectFromType(t)
}
