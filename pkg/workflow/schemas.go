package workflow

import (
	"fmt"
	"strings"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var stringOrList = map[string]any{
	"oneOf": []any{
		map[string]any{"type": "string"},
		map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
}

var clockTime = map[string]any{
	"type":    "string",
	"pattern": `^([01]?[0-9]|2[0-3]):[0-5][0-9]$`,
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		list := make([]any, 0, len(required))
		for _, r := range required {
			list = append(list, r)
		}

		schema["required"] = list
	}

	return schema
}

func enum(values ...string) map[string]any {
	list := make([]any, 0, len(values))
	for _, v := range values {
		list = append(list, v)
	}

	return map[string]any{"type": "string", "enum": list}
}

// nodeSchemas holds the JSON schema of each node type's properties.
var nodeSchemas = map[string]map[string]any{
	models.NodeTypeEmailTrigger: objectSchema(map[string]any{
		"eventType":      map[string]any{"type": "string"},
		"senderFilter":   stringOrList,
		"subjectPattern": map[string]any{"type": "string"},
		"mailboxFilter":  stringOrList,
		"timeWindow": objectSchema(map[string]any{
			"start":    clockTime,
			"end":      clockTime,
			"timezone": map[string]any{"type": "string"},
		}, "start", "end"),
	}),
	models.NodeTypeConditionContent: objectSchema(map[string]any{
		"operator":       enum("contains", "not_contains", "regex", "ai_analysis"),
		"value":          map[string]any{"type": "string"},
		"field":          enum("body", "subject", "all"),
		"case_sensitive": map[string]any{"type": "boolean"},
		"threshold":      map[string]any{"type": "number", "minimum": 0, "maximum": 1},
	}, "value"),
	models.NodeTypeConditionSender: objectSchema(map[string]any{
		"operator":     enum("in_list", "domain_match", "frequency_threshold"),
		"senders":      stringOrList,
		"domains":      stringOrList,
		"threshold":    map[string]any{"type": "number", "minimum": 1},
		"window_hours": map[string]any{"type": "number", "minimum": 0},
	}),
	models.NodeTypeConditionTime: objectSchema(map[string]any{
		"operator":   enum("business_hours", "within_hours", "day_of_week"),
		"start_hour": map[string]any{"type": "integer", "minimum": 0, "maximum": 23},
		"end_hour":   map[string]any{"type": "integer", "minimum": 1, "maximum": 24},
		"days":       stringOrList,
		"timezone":   map[string]any{"type": "string"},
		"hours":      map[string]any{"type": "number", "minimum": 0},
	}),
	models.NodeTypeConditionAI: objectSchema(map[string]any{
		"prompt":    map[string]any{"type": "string", "minLength": 1},
		"threshold": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
	}, "prompt"),
	models.NodeTypeConditionExpression: objectSchema(map[string]any{
		"expression": map[string]any{"type": "string", "minLength": 1},
	}, "expression"),
	models.NodeTypeActionReply: objectSchema(map[string]any{
		"to":           stringOrList,
		"subject":      map[string]any{"type": "string"},
		"body":         map[string]any{"type": "string"},
		"generate":     map[string]any{"type": "boolean"},
		"instructions": map[string]any{"type": "string"},
	}),
	models.NodeTypeActionTask: objectSchema(map[string]any{
		"title":        map[string]any{"type": "string"},
		"description":  map[string]any{"type": "string"},
		"priority":     enum("low", "normal", "high", "urgent"),
		"assignee":     map[string]any{"type": "string"},
		"due_in_hours": map[string]any{"type": "number", "minimum": 0},
	}),
	models.NodeTypeActionForward: objectSchema(map[string]any{
		"to":   stringOrList,
		"note": map[string]any{"type": "string"},
	}, "to"),
	models.NodeTypeActionNotify: objectSchema(map[string]any{
		"channel":    map[string]any{"type": "string"},
		"recipients": stringOrList,
		"title":      map[string]any{"type": "string"},
		"message":    map[string]any{"type": "string"},
	}),
	models.NodeTypeLogicAnd: logicSchema(),
	models.NodeTypeLogicOr:  logicSchema(),
	models.NodeTypeLogicNot: logicSchema(),
}

func logicSchema() map[string]any {
	return objectSchema(map[string]any{
		"inputs": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	})
}

// NodeSchema returns the property schema for a node type.
func NodeSchema(nodeType string) (map[string]any, bool) {
	schema, ok := nodeSchemas[nodeType]

	return schema, ok
}

// ValidateProperties checks props against the schema of nodeType.
func ValidateProperties(nodeType string, props models.Properties) error {
	schema, ok := nodeSchemas[nodeType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}

	data := map[string]any(props)
	if data == nil {
		data = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProperties, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidProperties, strings.Join(messages, "; "))
	}

	return nil
}
