package usage

import "strings"

// Tool identifies a metered operation.
type Tool int

const (
	ToolMerge Tool = iota + 1
	ToolSplit
	ToolImages
)

var toolNames = map[Tool]string{
	ToolMerge:  "merge",
	ToolSplit:  "split",
	ToolImages: "images",
}

func (t Tool) String() string {
	if s, ok := toolNames[t]; ok {
		return s
	}
	return "unknown"
}

// Valid reports whether t is one of the known tools.
func (t Tool) Valid() bool {
	_, ok := toolNames[t]
	return ok
}

// ParseTool looks up a tool by name.
func ParseTool(s string) (Tool, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range toolNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// Tools lists every tool in declaration order.
func Tools() []Tool { return []Tool{ToolMerge, ToolSplit, ToolImages} }
