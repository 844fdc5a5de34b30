// Package graph maintains the rendered subscription graph: an id-keyed node
// arena with radial layout, incremental add/remove diffing, and a two-phase
// appearance lifecycle. Node ids are derived deterministically from the
// parent chain so surviving nodes keep their position across rebuilds.
package graph

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nardoguy14/pr-helper/internal/model"
)

const (
	// rootRadius is the radius of the circle root nodes are placed on.
	rootRadius = 300.0

	// childBaseRadius and childRadiusStep set how far children sit from
	// their parent; the distance grows with fan-out so dense branches
	// spread before they collide.
	childBaseRadius = 110.0
	childRadiusStep = 16.0

	// arcPerChild is the angular spacing between siblings; the total arc is
	// capped so large branches never wrap around the parent.
	arcPerChild = 0.35
	maxChildArc = 2 * math.Pi / 3

	// minRootSeparation is the smallest allowed angular distance (about the
	// canvas center) between a child node and an unrelated root branch.
	minRootSeparation = 0.25
	nudgeStep         = 0.1
	maxNudgeSteps     = 8

	// enterDelay sequences node appearance; it has no effect on layout.
	enterDelay = 250 * time.Millisecond
)

// Inputs are the four read-only inputs the layout is derived from.
type Inputs struct {
	Subscriptions []*model.Subscription
	ItemsOf       func(subscriptionID string) []*model.ReviewItem
	Expansion     model.ExpansionState
	Filter        model.ItemFilter
}

// Diff is the minimal set of additions and removals between two rebuilds.
type Diff struct {
	AddedNodes   []string
	RemovedNodes []string
	AddedEdges   []string
	RemovedEdges []string
}

// Empty reports whether the rebuild changed nothing.
func (d Diff) Empty() bool {
	return len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 &&
		len(d.AddedEdges) == 0 && len(d.RemovedEdges) == 0
}

// nodeSpec is one desired node computed from the current inputs.
type nodeSpec struct {
	id       string
	typ      model.NodeType
	label    string
	parentID string
	sub      *model.Subscription
	item     *model.ReviewItem
	index    int // position among siblings
	siblings int
}

// Engine owns the graph state. Rebuild derives the desired node set from the
// inputs and mutates the arena incrementally; identical inputs always yield
// an identical graph with identical positions.
type Engine struct {
	mu      sync.Mutex
	sched   Scheduler
	onPhase func()

	nodes  map[string]*model.GraphNode
	edges  map[string]*model.GraphEdge
	roots  []string // visible root ids from the last rebuild, input order
	timers map[string]func()
}

// NewEngine returns an empty engine. onPhase (optional) is invoked after a
// scheduled entering→visible transition completes.
func NewEngine(sched Scheduler, onPhase func()) *Engine {
	if sched == nil {
		sched = ClockScheduler{}
	}
	return &Engine{
		sched:   sched,
		onPhase: onPhase,
		nodes:   make(map[string]*model.GraphNode),
		edges:   make(map[string]*model.GraphEdge),
		timers:  make(map[string]func()),
	}
}

// Rebuild reconciles the graph against the current inputs and returns the
// add/remove diff. Surviving nodes keep their position and phase.
func (e *Engine) Rebuild(in Inputs) Diff {
	e.mu.Lock()
	defer e.mu.Unlock()

	specs, creation, roots := desiredNodes(in)
	desiredEdges := make(map[string]*nodeSpec, len(creation))
	for _, id := range creation {
		sp := specs[id]
		if sp.parentID != "" {
			desiredEdges[model.EdgeID(sp.parentID, sp.id)] = sp
		}
	}

	var diff Diff

	// Remove nodes and edges that no longer exist.
	for id := range e.nodes {
		if _, keep := specs[id]; !keep {
			delete(e.nodes, id)
			e.cancelTimer(id)
			diff.RemovedNodes = append(diff.RemovedNodes, id)
		}
	}
	for id := range e.edges {
		if _, keep := desiredEdges[id]; !keep {
			delete(e.edges, id)
			e.cancelTimer(id)
			diff.RemovedEdges = append(diff.RemovedEdges, id)
		}
	}

	// Root positions are recomputed in one pass only when the visible root
	// set changed; otherwise every surviving root keeps its spot.
	rootAngles := make(map[string]float64, len(roots))
	if !sameSet(roots, e.roots) {
		for i, id := range roots {
			rootAngles[id] = -math.Pi/2 + 2*math.Pi*float64(i)/float64(len(roots))
		}
	}

	// Add missing nodes in creation order (parents precede children) and
	// refresh the data back-references on survivors.
	var entered []string
	for _, id := range creation {
		sp := specs[id]
		if n, ok := e.nodes[id]; ok {
			n.Label = sp.label
			n.Subscription = sp.sub
			n.Item = sp.item
			if angle, moved := rootAngles[id]; moved && sp.parentID == "" {
				n.X = rootRadius * math.Cos(angle)
				n.Y = rootRadius * math.Sin(angle)
			}
			continue
		}

		n := &model.GraphNode{
			ID:           id,
			Type:         sp.typ,
			Label:        sp.label,
			ParentID:     sp.parentID,
			Phase:        model.PhaseEntering,
			Subscription: sp.sub,
			Item:         sp.item,
		}
		if sp.parentID == "" {
			angle, ok := rootAngles[id]
			if !ok {
				// A new root always changes the root set, so this branch is
				// unreachable; keep a deterministic fallback anyway.
				angle = -math.Pi / 2
			}
			n.X = rootRadius * math.Cos(angle)
			n.Y = rootRadius * math.Sin(angle)
		} else {
			parent := e.nodes[sp.parentID]
			n.X, n.Y = e.placeChild(parent, sp, roots)
		}
		e.nodes[id] = n
		diff.AddedNodes = append(diff.AddedNodes, id)
		entered = append(entered, id)
	}

	for id, sp := range desiredEdges {
		if _, ok := e.edges[id]; ok {
			continue
		}
		e.edges[id] = &model.GraphEdge{
			ID:     id,
			Source: sp.parentID,
			Target: sp.id,
			Phase:  model.PhaseEntering,
		}
		diff.AddedEdges = append(diff.AddedEdges, id)
		entered = append(entered, id)
	}

	for _, id := range entered {
		e.scheduleEnter(id)
	}

	e.roots = roots

	sort.Strings(diff.AddedNodes)
	sort.Strings(diff.RemovedNodes)
	sort.Strings(diff.AddedEdges)
	sort.Strings(diff.RemovedEdges)
	return diff
}

// Snapshot returns copies of the current nodes and edges, sorted by id.
func (e *Engine) Snapshot() ([]*model.GraphNode, []*model.GraphEdge) {
	e.mu.Lock()
	defer e.mu.Unlock()

	nodes := make([]*model.GraphNode, 0, len(e.nodes))
	for _, n := range e.nodes {
		cp := *n
		nodes = append(nodes, &cp)
	}
	edges := make([]*model.GraphEdge, 0, len(e.edges))
	for _, ed := range e.edges {
		cp := *ed
		edges = append(edges, &cp)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return nodes, edges
}

// Node returns a copy of the node with the given id, or nil.
func (e *Engine) Node(id string) *model.GraphNode {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.nodes[id]
	if !ok {
		return nil
	}
	cp := *n
	return &cp
}

// Stop cancels all pending phase timers. Called on session teardown.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, cancel := range e.timers {
		cancel()
		delete(e.timers, id)
	}
}

func (e *Engine) cancelTimer(id string) {
	if cancel, ok := e.timers[id]; ok {
		cancel()
		delete(e.timers, id)
	}
}

// scheduleEnter arms the entering→visible transition for a node or edge id.
// Caller holds e.mu.
func (e *Engine) scheduleEnter(id string) {
	e.cancelTimer(id)
	e.timers[id] = e.sched.AfterFunc(enterDelay, func() {
		e.markVisible(id)
	})
}

func (e *Engine) markVisible(id string) {
	e.mu.Lock()
	changed := false
	if n, ok := e.nodes[id]; ok && n.Phase == model.PhaseEntering {
		n.Phase = model.PhaseVisible
		changed = true
	}
	if ed, ok := e.edges[id]; ok && ed.Phase == model.PhaseEntering {
		ed.Phase = model.PhaseVisible
		changed = true
	}
	delete(e.timers, id)
	onPhase := e.onPhase
	e.mu.Unlock()

	if changed && onPhase != nil {
		onPhase()
	}
}

// placeChild positions a new child on an arc centered on the ray from the
// canvas center through its parent, then nudges it away from unrelated root
// branches by a bounded angular displacement. Caller holds e.mu.
func (e *Engine) placeChild(parent *model.GraphNode, sp *nodeSpec, roots []string) (float64, float64) {
	parentAngle := math.Atan2(parent.Y, parent.X)

	spread := arcPerChild * float64(sp.siblings-1)
	if spread > maxChildArc {
		spread = maxChildArc
	}
	theta := parentAngle
	if sp.siblings > 1 {
		theta = parentAngle - spread/2 + spread*float64(sp.index)/float64(sp.siblings-1)
	}
	radius := childBaseRadius + childRadiusStep*float64(sp.siblings)

	ownRoot := rootOf(sp.id)
	x := parent.X + radius*math.Cos(theta)
	y := parent.Y + radius*math.Sin(theta)
	for step := 0; step < maxNudgeSteps; step++ {
		dir, conflict := e.rootConflict(x, y, ownRoot, roots)
		if !conflict {
			break
		}
		theta += dir * nudgeStep
		x = parent.X + radius*math.Cos(theta)
		y = parent.Y + radius*math.Sin(theta)
	}
	return x, y
}

// rootConflict reports whether the point sits angularly too close to an
// unrelated root branch, and the direction (+1/-1) that moves it away from
// the closest offender.
func (e *Engine) rootConflict(x, y float64, ownRoot string, roots []string) (float64, bool) {
	angle := math.Atan2(y, x)
	closest := math.MaxFloat64
	dir := 1.0
	for _, id := range roots {
		if id == ownRoot {
			continue
		}
		root, ok := e.nodes[id]
		if !ok {
			continue
		}
		diff := angularDiff(angle, math.Atan2(root.Y, root.X))
		if d := math.Abs(diff); d < minRootSeparation && d < closest {
			closest = d
			if diff < 0 {
				dir = -1.0
			} else {
				dir = 1.0
			}
		}
	}
	return dir, closest < math.MaxFloat64
}

// angularDiff returns the signed angular difference a-b wrapped to [-π, π].
func angularDiff(a, b float64) float64 {
	d := a - b
	for d > math.Pi {
		d -= 2 * math.Pi
	}
	for d < -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

// rootOf extracts the root node id from a derived id (the segment before the
// first "#").
func rootOf(id string) string {
	if i := strings.Index(id, "#"); i >= 0 {
		return id[:i]
	}
	return id
}

// desiredNodes derives the full desired node set from the inputs: one root
// per enabled subscription with at least one visible item, plus children for
// every expanded parent. Branches with nothing visible contribute no nodes.
func desiredNodes(in Inputs) (map[string]*nodeSpec, []string, []string) {
	specs := make(map[string]*nodeSpec)
	var creation []string
	var roots []string

	add := func(sp *nodeSpec) {
		specs[sp.id] = sp
		creation = append(creation, sp.id)
	}

	for _, sub := range in.Subscriptions {
		if !sub.Enabled {
			continue
		}
		visible := filterItems(in.ItemsOf(sub.ID), in.Filter)
		if len(visible) == 0 {
			continue
		}

		rootID := sub.ID
		roots = append(roots, rootID)
		typ := model.NodeRepository
		if sub.Kind == model.KindTeam {
			typ = model.NodeTeam
		}
		add(&nodeSpec{id: rootID, typ: typ, label: sub.Label(), sub: sub})

		if !in.Expansion.Expanded(rootID) {
			continue
		}

		if sub.Kind == model.KindTeam {
			groups := groupByRepo(visible)
			for i, g := range groups {
				repoID := model.RepoNodeID(rootID, g.name)
				add(&nodeSpec{
					id:       repoID,
					typ:      model.NodeRepository,
					label:    g.name,
					parentID: rootID,
					sub:      sub,
					index:    i,
					siblings: len(groups),
				})
				if in.Expansion.Expanded(repoID) {
					addItems(add, repoID, g.items)
				}
			}
		} else {
			addItems(add, rootID, visible)
		}
	}

	return specs, creation, roots
}

func addItems(add func(*nodeSpec), parentID string, items []*model.ReviewItem) {
	for i, it := range items {
		add(&nodeSpec{
			id:       model.ItemNodeID(parentID, it.Number),
			typ:      model.NodeItem,
			label:    "#" + strconv.Itoa(it.Number),
			parentID: parentID,
			item:     it,
			index:    i,
			siblings: len(items),
		})
	}
}

func filterItems(items []*model.ReviewItem, f model.ItemFilter) []*model.ReviewItem {
	out := items[:0:0]
	for _, it := range items {
		if f.Matches(it) {
			out = append(out, it)
		}
	}
	return out
}

// repoGroup is the per-repository slice of a team subscription's items.
type repoGroup struct {
	name  string
	items []*model.ReviewItem
}

// groupByRepo buckets items by repository name, sorted by name so sibling
// order is deterministic.
func groupByRepo(items []*model.ReviewItem) []repoGroup {
	byName := make(map[string][]*model.ReviewItem)
	for _, it := range items {
		byName[it.RepoName] = append(byName[it.RepoName], it)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	groups := make([]repoGroup, 0, len(names))
	for _, name := range names {
		groups = append(groups, repoGroup{name: name, items: byName[name]})
	}
	return groups
}

// sameSet reports whether two id slices contain the same members.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}
