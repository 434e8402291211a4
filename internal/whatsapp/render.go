package whatsapp

import "regexp"

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Render substitutes every {NAME} token in content with vars["NAME"],
// or the empty string when the key is absent. Substitution is a single
// pass: inserted values are never re-scanned for further tokens, and
// values go in verbatim with no escaping.
func Render(content string, vars map[string]string) string {
	return renderWith(content, vars, "")
}

// RenderPreview behaves like Render but marks absent keys with a
// [Missing] sentinel, for the admin template preview.
func RenderPreview(content string, vars map[string]string) string {
	return renderWith(content, vars, "[Missing]")
}

func renderWith(content string, vars map[string]string, missing string) string {
	return placeholderRe.ReplaceAllStringFunc(content, func(token string) string {
		name := token[1 : len(token)-1]
		if value, ok := vars[name]; ok {
			return value
		}
		return missing
	})
}
