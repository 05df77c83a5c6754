package health

import "strings"

// ToGjsonPath converts a JSONPath expression to gjson syntax:
// "$.requests[0].failed" becomes "requests.0.failed".
// Bare gjson paths pass through unchanged.
func ToGjsonPath(path string) string {
	if !strings.HasPrefix(path, "$") {
		return path
	}

	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	// Quoted bracket keys: ['name'] and ["name"]
	r := strings.NewReplacer(`['`, ".", `']`, "", `["`, ".", `"]`, "")
	path = r.Replace(path)

	// Index brackets: [0]
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)

	return strings.TrimPrefix(path, ".")
}
