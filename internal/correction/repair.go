package correction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cuongbtq/docconv/internal/domain"
)

const blockListSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["type", "text"],
    "properties": {
      "type": {"type": "string"},
      "text": {"type": "string"},
      "text_level": {"type": ["integer", "null"], "minimum": 0},
      "page_idx": {"type": "integer", "minimum": 0}
    }
  }
}`

var blockListSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("content_list.json", strings.NewReader(blockListSchemaJSON)); err != nil {
		panic(fmt.Sprintf("add content list schema: %v", err))
	}
	schema, err := compiler.Compile("content_list.json")
	if err != nil {
		panic(fmt.Sprintf("compile content list schema: %v", err))
	}
	return schema
}

// stripCodeFences removes a surrounding Markdown code fence, if any
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the info string, e.g. ```json
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// unwrapArray returns the array inside an object holding exactly one array
// field, e.g. {"content": [...]}. Anything else is returned unchanged.
func unwrapArray(v any) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}

	var found any
	arrays := 0
	for _, field := range obj {
		if arr, ok := field.([]any); ok {
			found = arr
			arrays++
		}
	}
	if arrays == 1 && len(obj) == 1 {
		return found
	}
	return v
}

// parseBlocks repairs and validates model output into the blocks of page
// pageIdx. The page index is taken from the request, not the model.
func parseBlocks(provider, text string, pageIdx int) ([]domain.ContentBlock, error) {
	cleaned := stripCodeFences(text)

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &Failure{Provider: provider, Reason: ReasonInvalidJSON, Err: err}
	}

	doc = unwrapArray(doc)
	if err := blockListSchema.Validate(doc); err != nil {
		return nil, &Failure{Provider: provider, Reason: ReasonSchema, Err: err}
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, &Failure{Provider: provider, Reason: ReasonInvalidJSON, Err: err}
	}

	var blocks []domain.ContentBlock
	if err := json.NewDecoder(bytes.NewReader(normalized)).Decode(&blocks); err != nil {
		return nil, &Failure{Provider: provider, Reason: ReasonSchema, Err: err}
	}

	for i := range blocks {
		blocks[i].PageIdx = pageIdx
		if blocks[i].TextLevel != nil && *blocks[i].TextLevel == 0 {
			blocks[i].TextLevel = nil
		}
	}
	return blocks, nil
}
