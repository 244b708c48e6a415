package bot

import "strings"

// AllowList controls which principals may use the bot. An empty or nil
// AllowList denies everyone.
type AllowList struct {
	principals map[string]struct{}
}

// NewAllowList creates an AllowList. Ids are trimmed at construction time.
func NewAllowList(principals []string) *AllowList {
	a := &AllowList{principals: make(map[string]struct{}, len(principals))}
	for _, p := range principals {
		if p = strings.TrimSpace(p); p != "" {
			a.principals[p] = struct{}{}
		}
	}
	return a
}

// IsAllowed reports whether principal may talk to the bot.
func (a *AllowList) IsAllowed(principal string) bool {
	if a == nil || len(a.principals) == 0 {
		return false
	}
	_, ok := a.principals[strings.TrimSpace(principal)]
	return ok
}

// Len returns the number of allowed principals.
func (a *AllowList) Len() int {
	if a == nil {
		return 0
	}
	return len(a.principals)
}
