package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseReply turns a JSON-mode completion into a Reply, tolerating code
// fences, surrounding prose and a top level array.
func ParseReply(text string) Reply {
	clean := stripFences(text)

	var decoded any
	if err := json.Unmarshal([]byte(clean), &decoded); err != nil {
		if obj := outermostObject(clean); obj == "" || json.Unmarshal([]byte(obj), &decoded) != nil {
			return Reply{
				Text:   fmt.Sprintf("Error parsing JSON response: %v\n%s", err, text),
				Tools:  []ToolCall{},
				Failed: true,
			}
		}
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		if arr, isArr := decoded.([]any); isArr && len(arr) > 0 {
			obj, ok = arr[0].(map[string]any)
		}
	}
	if !ok {
		return Reply{Text: fmt.Sprint(decoded), Tools: []ToolCall{}}
	}

	if _, has := obj["reply"]; !has {
		obj["reply"] = ""
	}
	if obj["tools"] == nil {
		obj["tools"] = []any{}
	}
	raw, _ := json.Marshal(obj)

	reply := Reply{Raw: raw, Tools: []ToolCall{}}
	switch v := obj["reply"].(type) {
	case string:
		reply.Text = v
	case nil:
	default:
		reply.Text = fmt.Sprint(v)
	}
	if list, ok := obj["tools"].([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, _ := m["name"].(string)
			if name == "" {
				continue
			}
			args, _ := m["args"].(map[string]any)
			if args == nil {
				args = map[string]any{}
			}
			reply.Tools = append(reply.Tools, ToolCall{Name: name, Args: args})
		}
	}
	return reply
}

func stripFences(text string) string {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(strings.TrimSpace(clean), "```")
	return strings.TrimSpace(clean)
}

func outermostObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
