package coding

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind names the JSON shape of a profiled value.
type Kind string

const (
	KindObject Kind = "object"
	KindArray  Kind = "array"
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindNull   Kind = "null"
)

func kindOf(v any) Kind {
	switch v.(type) {
	case map[string]any:
		return KindObject
	case []any:
		return KindArray
	case string:
		return KindString
	case json.Number, float64, int, int64:
		return KindNumber
	case bool:
		return KindBool
	default:
		return KindNull
	}
}

// Node is one position in a schema profile tree. Count records how many
// values of each kind were seen at that position across all profiled
// records. Array elements are keyed by index.
type Node struct {
	Count    map[Kind]int     `json:"count"`
	Children map[string]*Node `json:"children,omitempty"`
	Depth    int              `json:"-"`
}

// NewProfile returns an empty root node.
func NewProfile() *Node {
	return &Node{Count: make(map[Kind]int)}
}

func (n *Node) child(key string) *Node {
	if n.Children == nil {
		n.Children = make(map[string]*Node)
	}
	c, ok := n.Children[key]
	if !ok {
		c = &Node{Count: make(map[Kind]int), Depth: n.Depth + 1}
		n.Children[key] = c
	}
	return c
}

// Add folds one record into the profile.
func (n *Node) Add(v any) *Node {
	n.Count[kindOf(v)]++
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			n.child(k).Add(child)
		}
	case []any:
		for i, child := range node {
			n.child(strconv.Itoa(i)).Add(child)
		}
	}
	return n
}

// String renders the tree with children sorted by key.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b, "")
	return b.String()
}

func (n *Node) write(b *strings.Builder, name string) {
	indent := strings.Repeat("   ", n.Depth)
	kinds := make([]string, 0, len(n.Count))
	for k, c := range n.Count {
		kinds = append(kinds, fmt.Sprintf("%s=%d", k, c))
	}
	sort.Strings(kinds)
	if name == "" {
		fmt.Fprintf(b, "%s{%s}\n", indent, strings.Join(kinds, " "))
	} else {
		fmt.Fprintf(b, "%s%s: {%s}\n", indent, name, strings.Join(kinds, " "))
	}

	keys := make([]string, 0, len(n.Children))
	for k := range n.Children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.Children[k].write(b, k)
	}
}
