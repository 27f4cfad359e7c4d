package notify

import "regexp"

// mentionRe matches @username tokens. Word characters plus CJK so handles
// like @小明 are picked up.
var mentionRe = regexp.MustCompile(`@([\w\p{Han}]+)`)

// ExtractMentions returns the usernames mentioned in text, deduplicated, in
// order of first appearance. It performs no lookup; callers resolve the names
// and drop the unknown ones.
func ExtractMentions(text string) []string {
	matches := mentionRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
