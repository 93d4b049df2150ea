// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package httpapi

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
)

// SchemaBaseURL prefixes the $id of every request schema.
const SchemaBaseURL = "https://mealmind.dev/schemas/"

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" jsonschema:"minLength=1,maxLength=320,description=Account email address"`
	Password string `json:"password" jsonschema:"minLength=1,maxLength=1024,description=Account password"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" jsonschema:"minLength=1,maxLength=320"`
	Password string `json:"password" jsonschema:"minLength=1,maxLength=1024"`
}

// RefreshRequest is the body of POST /auth/refresh and POST /auth/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" jsonschema:"minLength=1,maxLength=512,description=Opaque refresh token"`
}

// requestTypes lists the request bodies by schema name.
var requestTypes = map[string]any{
	"register": &RegisterRequest{},
	"login":    &LoginRequest{},
	"refresh":  &RefreshRequest{},
}

// SchemaNames returns the request schema names in sorted order.
func SchemaNames() []string {
	names := make([]string, 0, len(requestTypes))
	for name := range requestTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GenerateSchema renders the JSON Schema of the named request body.
func GenerateSchema(name string) ([]byte, error) {
	v, ok := requestTypes[name]
	if !ok {
		return nil, oops.Code("SCHEMA_UNKNOWN").With("name", name).Errorf("unknown request schema %q", name)
	}

	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(v)
	schema.ID = jsonschema.ID(schemaID(name))
	schema.Title = fmt.Sprintf("MealMind %s request", name)

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_MARSHAL_FAILED").With("name", name).Wrap(err)
	}
	return data, nil
}

func schemaID(name string) string {
	return SchemaBaseURL + name + ".schema.json"
}

// compileSchemas compiles every request schema.
func compileSchemas() (map[string]*jschema.Schema, error) {
	c := jschema.NewCompiler()
	for _, name := range SchemaNames() {
		data, err := GenerateSchema(name)
		if err != nil {
			return nil, err
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("name", name).Wrap(err)
		}
		if err := c.AddResource(schemaID(name), doc); err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("name", name).Wrap(err)
		}
	}

	compiled := make(map[string]*jschema.Schema, len(requestTypes))
	for _, name := range SchemaNames() {
		sch, err := c.Compile(schemaID(name))
		if err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("name", name).Wrap(err)
		}
		compiled[name] = sch
	}
	return compiled, nil
}
