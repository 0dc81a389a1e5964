package model

// NavigationKindHeader marks a group header node. Leaves leave Kind empty.
const NavigationKindHeader = "header"

// NavigationTree is the top-level navigation structure returned to the frontend.
type NavigationTree struct {
	Items []NavigationNode `yaml:"items" json:"items"`
}

// NavigationNode is either a group header or a leaf.
//
// A nil Roles means the leaf is visible to every role. A non-nil empty
// Roles is a leaf nobody may see.
type NavigationNode struct {
	Kind     string           `yaml:"kind,omitempty"     json:"kind,omitempty"`
	Segment  string           `yaml:"segment,omitempty"  json:"segment,omitempty"`
	Title    string           `yaml:"title"              json:"title"`
	Icon     string           `yaml:"icon,omitempty"     json:"icon,omitempty"`
	Roles    []string         `yaml:"roles,omitempty"    json:"roles,omitempty"`
	Children []NavigationNode `yaml:"children,omitempty" json:"children,omitempty"`
}

// IsHeader reports whether the node is a group header.
func (n NavigationNode) IsHeader() bool { return n.Kind == NavigationKindHeader }
