package navigation

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/medinor/dashboard/model"
)

func header(title string) model.NavigationNode {
	return model.NavigationNode{Kind: model.NavigationKindHeader, Title: title}
}

func leaf(segment string, roles ...string) model.NavigationNode {
	return model.NavigationNode{Segment: segment, Title: segment, Roles: roles}
}

func segments(tree model.NavigationTree) []string {
	var out []string
	for _, n := range tree.Items {
		if n.IsHeader() {
			out = append(out, "#"+n.Title)
			continue
		}
		out = append(out, n.Segment)
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name  string
		items []model.NavigationNode
		role  string
		want  []string
	}{
		{
			name:  "header with only forbidden leaves is removed",
			items: []model.NavigationNode{header("Admin"), leaf("admins", "superadmin"), leaf("audit", "superadmin")},
			role:  "seller",
			want:  nil,
		},
		{
			name: "empty header removed when next header starts",
			items: []model.NavigationNode{
				header("A"), leaf("a1", "admin"),
				header("B"), leaf("b1", "seller"),
			},
			role: "seller",
			want: []string{"#B", "b1"},
		},
		{
			name:  "leaf without roles is always kept",
			items: []model.NavigationNode{header("Main"), leaf("dashboard"), leaf("admins", "superadmin")},
			role:  "seller",
			want:  []string{"#Main", "dashboard"},
		},
		{
			name:  "leaves before any header",
			items: []model.NavigationNode{leaf("home"), leaf("secret", "superadmin"), header("Tail")},
			role:  "admin",
			want:  []string{"home"},
		},
		{
			name:  "consecutive headers",
			items: []model.NavigationNode{header("A"), header("B"), leaf("b1")},
			role:  "admin",
			want:  []string{"#B", "b1"},
		},
		{
			name:  "empty roles list hides leaf",
			items: []model.NavigationNode{header("A"), {Segment: "x", Title: "x", Roles: []string{}}},
			role:  "admin",
			want:  nil,
		},
		{
			name:  "order preserved",
			items: []model.NavigationNode{header("A"), leaf("3"), leaf("1", "admin"), leaf("2")},
			role:  "admin",
			want:  []string{"#A", "3", "1", "2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(model.NavigationTree{Items: tt.items}, tt.role)
			if diff := cmp.Diff(tt.want, segments(got)); diff != "" {
				t.Errorf("Filter() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilter_children(t *testing.T) {
	parent := model.NavigationNode{
		Segment:  "migrations",
		Title:    "Migrations",
		Children: []model.NavigationNode{leaf("clients", "admin", "superadmin"), leaf("products", "superadmin")},
	}
	tree := model.NavigationTree{Items: []model.NavigationNode{header("Data"), parent}}

	got := Filter(tree, "admin")
	if len(got.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(got.Items))
	}
	children := got.Items[1].Children
	if len(children) != 1 || children[0].Segment != "clients" {
		t.Errorf("children = %+v", children)
	}

	got = Filter(tree, "seller")
	if len(got.Items) != 0 {
		t.Errorf("seller items = %+v, want none", got.Items)
	}

	if len(tree.Items[1].Children) != 2 {
		t.Error("Filter modified its input")
	}
}

func TestFilter_parentRolesApplyBeforeChildren(t *testing.T) {
	parent := model.NavigationNode{
		Segment:  "reports",
		Title:    "Reports",
		Roles:    []string{"superadmin"},
		Children: []model.NavigationNode{leaf("sales")},
	}
	got := Filter(model.NavigationTree{Items: []model.NavigationNode{parent}}, "admin")
	if len(got.Items) != 0 {
		t.Errorf("items = %+v, want none", got.Items)
	}
}

func TestFilter_emptyRoleReturnsEverything(t *testing.T) {
	tree := model.NavigationTree{Items: []model.NavigationNode{header("A"), leaf("x", "superadmin")}}

	got := Filter(tree, "")

	if diff := cmp.Diff(tree, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	got.Items[1].Roles[0] = "changed"
	if tree.Items[1].Roles[0] != "superadmin" {
		t.Error("result shares memory with input")
	}
}

func TestFilter_idempotent(t *testing.T) {
	def, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	for _, role := range []string{model.RoleSuperAdmin, model.RoleAdmin, model.RoleSeller, "guest"} {
		once := Filter(def.Tree, role)
		twice := Filter(once, role)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("role %s not idempotent (-once +twice):\n%s", role, diff)
		}
	}
}
