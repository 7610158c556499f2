package graph

import (
	"testing"

	"github.com/plandeck/plandeck/internal/errors"
	"github.com/plandeck/plandeck/internal/model"
)

func jobSpec(producerID string, deps ...string) model.JobSpec {
	return model.JobSpec{
		ProducerID: producerID,
		DependsOn:  deps,
		Work:       &model.WorkSpec{Kind: model.WorkShell, Script: "true", Dialect: model.ShellBash},
	}
}

func TestBuild_EmptyPlan(t *testing.T) {
	_, err := Build(&model.PlanSpec{Name: "empty"})
	if !errors.Is(err, errors.ErrEmptyPlan) {
		t.Fatalf("Build() error = %v, want ErrEmptyPlan", err)
	}
}

func TestBuild_DuplicateProducerID(t *testing.T) {
	spec := &model.PlanSpec{
		Name: "dup",
		Jobs: []model.JobSpec{jobSpec("a"), jobSpec("a")},
	}
	_, err := Build(spec)
	if !errors.Is(err, errors.ErrDuplicateProducerID) {
		t.Fatalf("Build() error = %v, want ErrDuplicateProducerID", err)
	}
}

func TestBuild_UnknownDependency(t *testing.T) {
	spec := &model.PlanSpec{
		Name: "dangling",
		Jobs: []model.JobSpec{jobSpec("a", "ghost")},
	}
	_, err := Build(spec)
	if !errors.Is(err, errors.ErrUnknownDependency) {
		t.Fatalf("Build() error = %v, want ErrUnknownDependency", err)
	}
}

func TestBuild_CycleDetection(t *testing.T) {
	tests := []struct {
		name string
		jobs []model.JobSpec
	}{
		{
			name: "two node cycle",
			jobs: []model.JobSpec{jobSpec("a", "b"), jobSpec("b", "a")},
		},
		{
			name: "self dependency",
			jobs: []model.JobSpec{jobSpec("a", "a")},
		},
		{
			name: "cycle behind valid prefix",
			jobs: []model.JobSpec{
				jobSpec("a"),
				jobSpec("b", "a", "d"),
				jobSpec("c", "b"),
				jobSpec("d", "c"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(&model.PlanSpec{Name: "cyclic", Jobs: tt.jobs})
			if !errors.Is(err, errors.ErrDependencyCycle) {
				t.Fatalf("Build() error = %v, want ErrDependencyCycle", err)
			}
		})
	}
}

func TestBuild_EdgesAndBoundaries(t *testing.T) {
	// a -> b -> d, a -> c -> d: diamond with one root and one leaf.
	spec := &model.PlanSpec{
		Name: "diamond",
		Jobs: []model.JobSpec{
			jobSpec("a"),
			jobSpec("b", "a"),
			jobSpec("c", "a"),
			jobSpec("d", "b", "c"),
		},
	}

	result, err := Build(spec)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	if len(result.Nodes) != 4 {
		t.Fatalf("Nodes len = %d, want 4", len(result.Nodes))
	}
	if len(result.Order) != 4 {
		t.Fatalf("Order len = %d, want 4", len(result.Order))
	}

	idOf := func(producer string) string {
		id, ok := result.ProducerIDToNodeID[producer]
		if !ok {
			t.Fatalf("producer %q missing from index", producer)
		}
		return id
	}

	if len(result.Roots) != 1 || result.Roots[0] != idOf("a") {
		t.Errorf("Roots = %v, want [a]", result.Roots)
	}
	if len(result.Leaves) != 1 || result.Leaves[0] != idOf("d") {
		t.Errorf("Leaves = %v, want [d]", result.Leaves)
	}

	a := result.Nodes[idOf("a")]
	if len(a.Dependents) != 2 {
		t.Errorf("a.Dependents = %v, want two entries", a.Dependents)
	}
	d := result.Nodes[idOf("d")]
	if len(d.Dependencies) != 2 {
		t.Errorf("d.Dependencies = %v, want two entries", d.Dependencies)
	}

	// Order must put every dependency before its dependents.
	position := make(map[string]int, len(result.Order))
	for i, id := range result.Order {
		position[id] = i
	}
	for id, node := range result.Nodes {
		for _, dep := range node.Dependencies {
			if position[dep] >= position[id] {
				t.Errorf("node %s ordered before its dependency %s", node.ProducerID, result.Nodes[dep].ProducerID)
			}
		}
	}
}

func TestBuild_DuplicateEdgesCollapse(t *testing.T) {
	spec := &model.PlanSpec{
		Name: "dup-edges",
		Jobs: []model.JobSpec{
			jobSpec("a"),
			jobSpec("b", "a", "a"),
		},
	}

	result, err := Build(spec)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	b := result.Nodes[result.ProducerIDToNodeID["b"]]
	if len(b.Dependencies) != 1 {
		t.Errorf("b.Dependencies = %v, want a single edge", b.Dependencies)
	}
}

func TestBuild_NameDefaultsToProducerID(t *testing.T) {
	spec := &model.PlanSpec{
		Name: "naming",
		Jobs: []model.JobSpec{jobSpec("a")},
	}

	result, err := Build(spec)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	node := result.Nodes[result.ProducerIDToNodeID["a"]]
	if node.Name != "a" {
		t.Errorf("Name = %q, want producer id fallback", node.Name)
	}
	if node.Kind != "job" {
		t.Errorf("Kind = %q, want job", node.Kind)
	}
}

func TestBuild_InvalidWorkSpecRejected(t *testing.T) {
	spec := &model.PlanSpec{
		Name: "bad-spec",
		Jobs: []model.JobSpec{
			{
				ProducerID: "a",
				Work:       &model.WorkSpec{Kind: model.WorkProcess},
			},
		},
	}
	_, err := Build(spec)
	if err == nil {
		t.Fatal("Build() expected error for process spec without command")
	}
	var graphErr *errors.GraphError
	if !errors.As(err, &graphErr) {
		t.Fatalf("Build() error = %T, want *errors.GraphError", err)
	}
}

func TestBuild_Groups(t *testing.T) {
	withGroup := func(producer, group string, deps ...string) model.JobSpec {
		j := jobSpec(producer, deps...)
		j.Group = group
		return j
	}

	spec := &model.PlanSpec{
		Name: "grouped",
		Jobs: []model.JobSpec{
			withGroup("a", "backend"),
			withGroup("b", "backend/api", "a"),
			withGroup("c", "frontend"),
			jobSpec("d"),
		},
	}

	result, err := Build(spec)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	if len(result.Groups) != 3 {
		t.Fatalf("Groups len = %d, want 3 (backend, backend/api, frontend)", len(result.Groups))
	}

	backendID, ok := result.GroupPathToID["backend"]
	if !ok {
		t.Fatal("backend group missing")
	}
	backend := result.Groups[backendID]
	if len(backend.NodeIDs) != 2 {
		t.Errorf("backend.NodeIDs = %v, want member and descendant member", backend.NodeIDs)
	}

	apiID := result.GroupPathToID["backend/api"]
	if len(backend.ChildGroupIDs) != 1 || backend.ChildGroupIDs[0] != apiID {
		t.Errorf("backend.ChildGroupIDs = %v, want [backend/api]", backend.ChildGroupIDs)
	}

	api := result.Groups[apiID]
	if api.Name != "api" {
		t.Errorf("api.Name = %q, want last path segment", api.Name)
	}
	if len(api.NodeIDs) != 1 {
		t.Errorf("api.NodeIDs = %v, want single member", api.NodeIDs)
	}
}
