package model

import (
	"strconv"
	"strings"
)

// NodeType tags the three levels of the subscription graph.
type NodeType string

const (
	NodeTeam       NodeType = "team"
	NodeRepository NodeType = "repository"
	NodeItem       NodeType = "item"
)

// Phase is the two-state appearance lifecycle of a node or edge.
type Phase string

const (
	PhaseEntering Phase = "entering"
	PhaseVisible  Phase = "visible"
)

// GraphNode is a positioned node in the rendered subscription graph.
// The back-references never own the Subscription/ReviewItem; both are
// owned by the caches and replaced wholesale on data changes.
type GraphNode struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Label    string   `json:"label"`
	ParentID string   `json:"parent_id,omitempty"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Phase    Phase    `json:"phase"`

	Subscription *Subscription `json:"-"`
	Item         *ReviewItem   `json:"-"`
}

// GraphEdge is a directed parent→child edge.
type GraphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Phase  Phase  `json:"phase"`
}

// TeamNodeID derives the root node id for a team subscription.
func TeamNodeID(org, team string) string {
	return org + "/" + team
}

// RepoNodeID derives a repository node id from its parent chain. Repositories
// under a team are namespaced by the team node id; directly subscribed
// repositories are roots identified by the subscription id itself.
func RepoNodeID(parentID, repo string) string {
	if parentID == "" {
		return repo
	}
	return parentID + "#" + repo
}

// ItemNodeID derives an item node id from its parent repository node.
func ItemNodeID(parentID string, number int) string {
	return parentID + "#item:" + strconv.Itoa(number)
}

// EdgeID derives a deterministic edge id from its endpoints.
func EdgeID(source, target string) string {
	return source + "->" + target
}

// DescendantOf reports whether id names a strict descendant of ancestorID
// under the deterministic id scheme (ids of children extend the parent id
// with a "#" separator).
func DescendantOf(id, ancestorID string) bool {
	return len(id) > len(ancestorID) && strings.HasPrefix(id, ancestorID+"#")
}

// ExpansionState is the set of node ids the user has toggled open.
// It is view state only, never derived from data.
type ExpansionState map[string]bool

// Toggle flips the expansion of id and returns the new state (true = open).
func (e ExpansionState) Toggle(id string) bool {
	if e[id] {
		delete(e, id)
		return false
	}
	e[id] = true
	return true
}

// Expanded reports whether id is toggled open.
func (e ExpansionState) Expanded(id string) bool {
	return e[id]
}

// CollapseSubtree removes id and every descendant of id from the state, so
// re-expanding a parent does not resurrect stale deeper expansions.
func (e ExpansionState) CollapseSubtree(id string) {
	delete(e, id)
	for open := range e {
		if DescendantOf(open, id) {
			delete(e, open)
		}
	}
}
