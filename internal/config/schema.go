package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// schemaJSON constrains the documented keys. Unknown keys are allowed so that
// settings read by channels outside this module can share the file.
const schemaJSON = `{
  "type": "object",
  "properties": {
    "bot_type": {"enum": ["chatgpt", "azure", "qwen", "coze", "claude"]},
    "model": {"type": "string"},
    "temperature": {"type": "number", "minimum": 0, "maximum": 2},
    "top_p": {"type": "number", "minimum": 0, "maximum": 1},
    "frequency_penalty": {"type": "number", "minimum": -2, "maximum": 2},
    "presence_penalty": {"type": "number", "minimum": -2, "maximum": 2},
    "max_output_tokens": {"type": "integer", "minimum": 0},
    "request_timeout": {"type": "integer", "minimum": 0},
    "rate_limit_chatgpt": {"type": "integer", "minimum": 0},
    "clear_memory_commands": {"type": "array", "items": {"type": "string"}},
    "clear_all_commands": {"type": "array", "items": {"type": "string"}},
    "reload_config_commands": {"type": "array", "items": {"type": "string"}},
    "character_desc": {"type": "string"},
    "conversation_max_tokens": {"type": "integer", "minimum": 0},
    "conversation_max_messages": {"type": "integer", "minimum": 0},
    "expires_in_seconds": {"type": "integer", "minimum": 0},
    "text_to_image": {"enum": ["", "dall-e-2", "dall-e-3"]},
    "dalle3_image_quality": {"enum": ["standard", "hd"]},
    "azure_openai_dalle_poll_interval": {"type": "integer", "minimum": 0},
    "session_store": {
      "type": "object",
      "properties": {
        "kind": {"enum": ["", "none", "file", "sqlite", "mysql", "redis"]},
        "path": {"type": "string"},
        "dsn": {"type": "string"},
        "redis_address": {"type": "string"},
        "redis_db": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

// ValidationError lists every schema violation of a config document.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s", strings.Join(e.Errors, "; "))
}

// Validate checks a decoded config document (map form) against the schema.
func Validate(doc map[string]any) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaJSON)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errorMsgs []string
		for _, err := range result.Errors() {
			errorMsgs = append(errorMsgs, err.String())
		}
		return &ValidationError{Errors: errorMsgs}
	}

	return nil
}
