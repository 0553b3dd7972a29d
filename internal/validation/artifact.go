// Package validation checks serialized template artifacts against an
// embedded JSON Schema before they are trusted by the cache.
package validation

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/breeze/pkg/schema"
)

//go:embed schemas/artifact.schema.json
var artifactSchema []byte

// The schema's $id; resources are registered under it.
const artifactSchemaID = "https://breeze.dev/schemas/artifact.json"

// compiledArtifactSchema compiles the embedded schema once per process.
var compiledArtifactSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(artifactSchema))
	if err != nil {
		return nil, fmt.Errorf("artifact schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(artifactSchemaID, doc); err != nil {
		return nil, fmt.Errorf("artifact schema: %w", err)
	}
	return c.Compile(artifactSchemaID)
})

// ArtifactValidator validates artifact documents. Safe for concurrent use.
type ArtifactValidator struct {
	schema *jsonschema.Schema
}

func NewArtifactValidator() (*ArtifactValidator, error) {
	sch, err := compiledArtifactSchema()
	if err != nil {
		return nil, err
	}
	return &ArtifactValidator{schema: sch}, nil
}

// Validate checks raw artifact JSON. Schema failures carry every leaf
// violation, sorted, under Details["violations"].
func (v *ArtifactValidator) Validate(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "artifact is empty")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "artifact is not valid JSON").WithCause(err)
	}
	err = v.schema.Validate(doc)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}
	found := violations(verr)
	msg := found[0]
	if len(found) > 1 {
		msg = fmt.Sprintf("artifact has %d schema violations, first: %s", len(found), found[0])
	}
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": found})
}

// violations flattens a validation error tree into "/instance/path: message"
// lines, one per leaf.
func violations(root *jsonschema.ValidationError) []string {
	var out []string
	stack := []*jsonschema.ValidationError{root}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(e.Causes) > 0 {
			stack = append(stack, e.Causes...)
			continue
		}
		out = append(out, "/"+strings.Join(e.InstanceLocation, "/")+": "+e.Error())
	}
	slices.Sort(out)
	return slices.Compact(out)
}
