package agentloop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON argument names rather than Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})
	return v
}

// SchemaFor reflects the JSON schema of an argument struct. Fields without
// omitempty are required and unknown properties are disallowed.
func SchemaFor[T any]() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	schema := r.ReflectFromType(reflect.TypeFor[T]())
	schema.Version = ""
	return schema
}

// NewTool builds a RegisteredTool whose handler binds the model's arguments
// by name into T before calling fn. Binding failures are *ArgumentError.
func NewTool[T any](name, description string, fn func(ctx context.Context, args T) (string, error)) RegisteredTool {
	schema := SchemaFor[T]()
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			args, err := bindArguments[T](name, schema, raw)
			if err != nil {
				return "", err
			}
			return fn(ctx, args)
		},
	}
}

func bindArguments[T any](tool string, schema *jsonschema.Schema, raw json.RawMessage) (T, error) {
	var args T

	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		payload = []byte("{}")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return args, &ArgumentError{Tool: tool, Reason: "arguments must be a JSON object", Err: err}
	}

	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if schema.Properties == nil {
			return args, &ArgumentError{Tool: tool, Field: name, Reason: "unknown argument"}
		}
		if _, ok := schema.Properties.Get(name); !ok {
			return args, &ArgumentError{Tool: tool, Field: name, Reason: "unknown argument"}
		}
	}
	for _, name := range schema.Required {
		value, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return args, &ArgumentError{Tool: tool, Field: name, Reason: "missing required argument"}
		}
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&args); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return args, &ArgumentError{
				Tool:   tool,
				Field:  typeErr.Field,
				Reason: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
				Err:    err,
			}
		}
		return args, &ArgumentError{Tool: tool, Reason: err.Error(), Err: err}
	}

	if err := validate.Struct(args); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return args, &ArgumentError{
				Tool:   tool,
				Field:  fe.Field(),
				Reason: fmt.Sprintf("failed %q constraint", fe.Tag()),
				Err:    err,
			}
		}
		return args, &ArgumentError{Tool: tool, Reason: err.Error(), Err: err}
	}
	return args, nil
}
