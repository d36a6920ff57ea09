package models

// MenuItem is one navigation entry; Parent links items into a tree.
type MenuItem struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	URL    string  `json:"url"`
	Parent *string `json:"parent"`
	Order  int     `json:"order"`
	Target string  `json:"target"`
	Class  string  `json:"class,omitempty"`
}

const (
	TargetSelf  = "_self"
	TargetBlank = "_blank"
)

// ParentID returns the parent id or "" for roots.
func (m MenuItem) ParentID() string {
	if m.Parent == nil {
		return ""
	}
	return *m.Parent
}
