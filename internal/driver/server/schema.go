/*
Copyright 2024 Alexandre Mahdhaoui

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package server

import (
	"encoding/json"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// PostSchema is the draft-04 JSON schema of the body of POST /api/{version}/inf/gateway.
const PostSchema = `{
  "$schema": "http://json-schema.org/draft-04/schema#",
  "type": "object",
  "properties": {
    "wan": {
      "description": "The name of the Wide Area Network to connect to",
      "type": "string"
    },
    "lan": {
      "description": "The name of the Local Area Network to connect to",
      "type": "string"
    }
  },
  "required": ["wan", "lan"]
}`

var postSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(PostSchema))
})

// describe is returned by GET /api/{version}/inf/gateway?describe=true.
func describe() map[string]any {
	var post map[string]any

	// PostSchema is a constant: it always decodes.
	_ = json.Unmarshal([]byte(PostSchema), &post)

	return map[string]any{
		"get_args": map[string]any{},
		"post":     post,
		"delete":   map[string]any{},
	}
}

// validate returns the list of violations of the POST schema by body. It returns an error if body is not JSON.
func validate(body []byte) ([]string, error) {
	schema, err := postSchema()
	if err != nil {
		return nil, err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		out = append(out, e.String())
	}

	return out, nil
}
