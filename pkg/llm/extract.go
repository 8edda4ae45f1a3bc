package llm

import "strings"

// ExtractJSONObject returns the text between the first '{' and the last '}'
// of a model reply, which is how JSON answers wrapped in prose or code
// fences are recovered.
func ExtractJSONObject(content string) (string, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start < 0 || end <= start {
		return "", false
	}

	return content[start : end+1], true
}
