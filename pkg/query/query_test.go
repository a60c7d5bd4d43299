package query

import (
	"reflect"
	"testing"

	"github.com/maintlog/maintlog/pkg/stores"
)

func record(id, project, category, ticket, requester, technician string) stores.ReportRecord {
	return stores.ReportRecord{
		ID:      id,
		Project: project,
		Fields: stores.Payload{
			stores.FieldCategory:   category,
			stores.FieldTicket:     ticket,
			stores.FieldRequester:  requester,
			stores.FieldTechnician: technician,
			stores.FieldProblem:    "printer jammed",
		},
	}
}

func sample() []stores.ReportRecord {
	return []stores.ReportRecord{
		record("A", "1. Acme", "Hardware", "INC-1", "Ana", "Luis"),
		record("B", "1. Acme", "Software", "INC-2", "Bob", "Marta"),
		record("C", "2. Globex", "hardware", "REQ-3", "Carla", "Luis"),
		record("D", "", "Network", "INC-4", "Dan", ""),
	}
}

func TestMatch(t *testing.T) {
	recs := sample()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "zero filter", filter: Filter{}, want: []string{"A", "B", "C", "D"}},
		{name: "category all", filter: Filter{Category: CategoryAll}, want: []string{"A", "B", "C", "D"}},
		{name: "category all lowercase", filter: Filter{Category: "all"}, want: []string{"A", "B", "C", "D"}},
		{name: "category case insensitive", filter: Filter{Category: "HARD"}, want: []string{"A", "C"}},
		{name: "project exact", filter: Filter{Project: "1. Acme"}, want: []string{"A", "B"}},
		{name: "project not stripped", filter: Filter{Project: "Acme"}, want: []string{}},
		{name: "text on ticket", filter: Filter{Text: "inc-"}, want: []string{"A", "B", "D"}},
		{name: "text on technician", filter: Filter{Text: "luis"}, want: []string{"A", "C"}},
		{name: "text on category", filter: Filter{Text: "network"}, want: []string{"D"}},
		{name: "text ignores other fields", filter: Filter{Text: "printer"}, want: []string{}},
		{name: "combined", filter: Filter{Project: "1. Acme", Category: "hardware", Text: "ana"}, want: []string{"A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectAll(recs, tt.filter)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if n := Count(recs, tt.filter); n != len(tt.want) {
				t.Errorf("count: expected %d, got %d", len(tt.want), n)
			}
		})
	}
}

func TestFilteredSelectAll(t *testing.T) {
	recs := []stores.ReportRecord{
		{ID: "A", Fields: stores.Payload{stores.FieldCategory: "x"}},
		{ID: "B", Fields: stores.Payload{stores.FieldCategory: "y"}},
		{ID: "C", Fields: stores.Payload{stores.FieldCategory: "x"}},
	}

	got := SelectAll(recs, Filter{Category: "x"})
	if !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Fatalf("expected [A C], got %v", got)
	}
}

func TestApplyPreservesOrderAndSharesNothing(t *testing.T) {
	recs := sample()
	out := Apply(recs, Filter{Category: "hardware"})
	if len(out) != 2 || out[0].ID != "A" || out[1].ID != "C" {
		t.Fatalf("unexpected result %v", out)
	}

	out[0].ID = "changed"
	if recs[0].ID != "A" {
		t.Error("Apply result aliases the input slice")
	}
}

func TestCategories(t *testing.T) {
	got := Categories(sample())
	want := []string{"Hardware", "Network", "Software", "hardware"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
