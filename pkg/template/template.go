// Package template renders templated action properties against the execution context.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

// Data builds the template data for a running execution.
func Data(view models.ContextView) map[string]any {
	results := make(map[string]any)

	for id, result := range view.Results() {
		results[id] = map[string]any{
			"status": string(result.Status),
			"passed": result.Passed,
			"data":   result.Data,
		}
	}

	event := map[string]any{}
	if view.Event() != nil {
		event = view.Event().AsMap()
	}

	return map[string]any{
		"event":   event,
		"results": results,
		"execution": map[string]any{
			"id":          view.ExecutionID(),
			"workflow_id": view.WorkflowID(),
			"dry_run":     view.DryRun(),
		},
	}
}

// RenderWithContext renders one template string against the execution context.
func RenderWithContext(input string, view models.ContextView) (string, error) {
	return Render(input, Data(view))
}

func Render(templateStr string, data any) (string, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := template.
		New("property").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"default": func(def string, value any) string {
				if s := fmt.Sprintf("%v", value); value != nil && s != "" && s != "<no value>" {
					return s
				}

				return def
			},
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// RenderProperties renders every string value of props, descending into
// nested maps and lists. The input is left untouched.
func RenderProperties(props models.Properties, view models.ContextView) (models.Properties, error) {
	data := Data(view)

	rendered, err := renderValue(map[string]any(props), data)
	if err != nil {
		return nil, err
	}

	out, _ := rendered.(map[string]any)

	return models.Properties(out), nil
}

func renderValue(value any, data map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return Render(v, data)
	case models.Properties:
		return renderValue(map[string]any(v), data)
	case map[string]any:
		out := make(map[string]any, len(v))

		for key, item := range v {
			rendered, err := renderValue(item, data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}

			out[key] = rendered
		}

		return out, nil
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := renderValue(item, data)
			if err != nil {
				return nil, err
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}
