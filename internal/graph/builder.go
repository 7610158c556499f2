// Package graph builds the dependency graph of a plan from its job
// specs: internal ids, forward and reverse edges, topological boundary
// sets, and the hierarchical group structure. A malformed graph is
// rejected here, before any execution state exists.
package graph

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/plandeck/plandeck/internal/errors"
	"github.com/plandeck/plandeck/internal/model"
)

// Result is a fully validated plan graph, ready to seed a PlanInstance.
type Result struct {
	// Nodes maps internal node id to node.
	Nodes map[string]*model.Node

	// ProducerIDToNodeID maps the user-facing producer id to the
	// internal node id.
	ProducerIDToNodeID map[string]string

	// Roots are ids of nodes with no dependencies.
	Roots []string

	// Leaves are ids of nodes with no dependents.
	Leaves []string

	// Order is a topological order of all node ids, dependencies first.
	Order []string

	// Groups maps group id to group instance.
	Groups map[string]*model.GroupInstance

	// GroupPathToID maps hierarchical group path to group id.
	GroupPathToID map[string]string
}

// Build validates the job specs of a plan and constructs its graph.
// Every error is a GraphError: duplicate producer ids, references to
// unknown producer ids, dependency cycles, and invalid work specs are
// all rejected at build time.
func Build(spec *model.PlanSpec) (*Result, error) {
	if len(spec.Jobs) == 0 {
		return nil, errors.NewGraphError("plan has no jobs", errors.ErrEmptyPlan).
			WithPlanName(spec.Name)
	}

	result := &Result{
		Nodes:              make(map[string]*model.Node, len(spec.Jobs)),
		ProducerIDToNodeID: make(map[string]string, len(spec.Jobs)),
		Groups:             make(map[string]*model.GroupInstance),
		GroupPathToID:      make(map[string]string),
	}

	// First pass: create nodes and the producer id index.
	for i := range spec.Jobs {
		job := &spec.Jobs[i]
		if job.ProducerID == "" {
			return nil, errors.NewGraphError("job has no producer id", errors.ErrUnknownDependency).
				WithPlanName(spec.Name)
		}
		if _, exists := result.ProducerIDToNodeID[job.ProducerID]; exists {
			return nil, errors.NewGraphError("duplicate producer id: "+job.ProducerID, errors.ErrDuplicateProducerID).
				WithPlanName(spec.Name)
		}

		for _, ws := range []*model.WorkSpec{job.Prechecks, job.Work, job.Postchecks} {
			if ws == nil {
				continue
			}
			if err := ws.Validate(); err != nil {
				return nil, errors.NewGraphError("invalid work spec for "+job.ProducerID, err).
					WithPlanName(spec.Name)
			}
		}

		name := job.Name
		if name == "" {
			name = job.ProducerID
		}
		node := &model.Node{
			ID:               uuid.NewString(),
			ProducerID:       job.ProducerID,
			Kind:             "job",
			Name:             name,
			Task:             job.Task,
			Prechecks:        job.Prechecks,
			Work:             job.Work,
			Postchecks:       job.Postchecks,
			ExpectsNoChanges: job.ExpectsNoChanges,
			AutoHeal:         job.AutoHeal,
			GroupPath:        job.Group,
		}
		result.Nodes[node.ID] = node
		result.ProducerIDToNodeID[job.ProducerID] = node.ID
	}

	// Second pass: resolve edges.
	for i := range spec.Jobs {
		job := &spec.Jobs[i]
		nodeID := result.ProducerIDToNodeID[job.ProducerID]
		node := result.Nodes[nodeID]

		seen := make(map[string]bool, len(job.DependsOn))
		for _, dep := range job.DependsOn {
			depID, ok := result.ProducerIDToNodeID[dep]
			if !ok {
				return nil, errors.NewGraphError("unknown dependency "+dep+" of "+job.ProducerID, errors.ErrUnknownDependency).
					WithPlanName(spec.Name).
					WithNodeID(nodeID)
			}
			if seen[depID] {
				continue
			}
			seen[depID] = true
			node.Dependencies = append(node.Dependencies, depID)
			result.Nodes[depID].Dependents = append(result.Nodes[depID].Dependents, nodeID)
		}
	}

	// Deterministic edge ordering, so rebuilt plans serialize identically.
	for _, node := range result.Nodes {
		sort.Strings(node.Dependencies)
		sort.Strings(node.Dependents)
	}

	order, err := topologicalOrder(result.Nodes)
	if err != nil {
		return nil, errors.NewGraphError("dependency cycle detected", errors.ErrDependencyCycle).
			WithPlanName(spec.Name)
	}
	result.Order = order

	for _, id := range order {
		node := result.Nodes[id]
		if node.IsRoot() {
			result.Roots = append(result.Roots, id)
		}
		if node.IsLeaf() {
			result.Leaves = append(result.Leaves, id)
		}
	}

	buildGroups(result)
	return result, nil
}

// topologicalOrder returns node ids with every dependency before its
// dependents, or an error when the graph has a cycle. Ties break on
// producer id for determinism.
func topologicalOrder(nodes map[string]*model.Node) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	for id, node := range nodes {
		indegree[id] = len(node.Dependencies)
	}

	var frontier []string
	for id, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}

	byProducer := func(ids []string) {
		sort.Slice(ids, func(i, j int) bool {
			return nodes[ids[i]].ProducerID < nodes[ids[j]].ProducerID
		})
	}
	byProducer(frontier)

	order := make([]string, 0, len(nodes))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)

		var released []string
		for _, dep := range nodes[id].Dependents {
			indegree[dep]--
			if indegree[dep] == 0 {
				released = append(released, dep)
			}
		}
		byProducer(released)
		frontier = append(frontier, released...)
	}

	if len(order) != len(nodes) {
		return nil, errors.ErrDependencyCycle
	}
	return order, nil
}

// buildGroups constructs group instances from node group paths. A node
// is a member of its own group and every ancestor group, so group status
// derivation works directly off NodeIDs at any nesting depth.
func buildGroups(result *Result) {
	ensure := func(path string) *model.GroupInstance {
		if id, ok := result.GroupPathToID[path]; ok {
			return result.Groups[id]
		}
		segments := strings.Split(path, "/")
		group := &model.GroupInstance{
			ID:   uuid.NewString(),
			Path: path,
			Name: segments[len(segments)-1],
		}
		result.Groups[group.ID] = group
		result.GroupPathToID[path] = group.ID
		return group
	}

	for _, id := range result.Order {
		node := result.Nodes[id]
		if node.GroupPath == "" {
			continue
		}

		segments := strings.Split(node.GroupPath, "/")
		var parent *model.GroupInstance
		for i := range segments {
			path := strings.Join(segments[:i+1], "/")
			group := ensure(path)
			group.NodeIDs = append(group.NodeIDs, node.ID)
			if parent != nil && !containsID(parent.ChildGroupIDs, group.ID) {
				parent.ChildGroupIDs = append(parent.ChildGroupIDs, group.ID)
			}
			parent = group
		}
	}
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
