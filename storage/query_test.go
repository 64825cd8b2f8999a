package storage

import (
	"strings"
	"testing"

	"carscout/models"
)

func intp(v int) *int { return &v }

func TestBuildListingWhereNoFilters(t *testing.T) {
	where, args := buildListingWhere(models.ListingFilter{})

	if where != "WHERE is_active = TRUE" {
		t.Errorf("where = %q; want active-only clause", where)
	}
	if len(args) != 0 {
		t.Errorf("args = %v; want none", args)
	}
}

func TestBuildListingWhereConjunctive(t *testing.T) {
	f := models.ListingFilter{
		MinPrice:   intp(5000),
		MaxPrice:   intp(15000),
		Department: "69",
		MinYear:    intp(2015),
	}

	where, args := buildListingWhere(f)

	for _, cond := range []string{
		"is_active = TRUE",
		"price >= $1",
		"price <= $2",
		"year >= $3",
		"department = $4",
	} {
		if !strings.Contains(where, cond) {
			t.Errorf("where = %q; missing %q", where, cond)
		}
	}
	if got := strings.Count(where, " AND "); got != 4 {
		t.Errorf("AND count = %d; want 4", got)
	}
	if len(args) != 4 {
		t.Fatalf("args = %v; want 4 values", args)
	}
	if args[0] != 5000 || args[1] != 15000 || args[2] != 2015 || args[3] != "69" {
		t.Errorf("args = %v; wrong values or order", args)
	}
}

func TestBuildListingWhereSetMembership(t *testing.T) {
	f := models.ListingFilter{
		FuelTypes:   []string{"essence", "diesel"},
		SellerTypes: []string{"particulier"},
	}

	where, args := buildListingWhere(f)

	if !strings.Contains(where, "fuel_type = ANY($1)") {
		t.Errorf("where = %q; missing fuel_type ANY clause", where)
	}
	if !strings.Contains(where, "seller_type = ANY($2)") {
		t.Errorf("where = %q; missing seller_type ANY clause", where)
	}
	if len(args) != 2 {
		t.Errorf("args = %v; want 2 array values", args)
	}
}

func TestPageClause(t *testing.T) {
	clause, args := pageClause(models.ListingFilter{Skip: 10, Limit: 20}, 2)
	if clause != "OFFSET $3 LIMIT $4" {
		t.Errorf("clause = %q", clause)
	}
	if len(args) != 2 || args[0] != 10 || args[1] != 20 {
		t.Errorf("args = %v; want [10 20]", args)
	}

	// Limit <= 0 must mean unbounded, not LIMIT 0.
	clause, args = pageClause(models.ListingFilter{Skip: 5}, 0)
	if clause != "OFFSET $1" {
		t.Errorf("clause = %q; want no LIMIT for zero limit", clause)
	}
	if len(args) != 1 || args[0] != 5 {
		t.Errorf("args = %v; want [5]", args)
	}
}

func TestOrderClause(t *testing.T) {
	tests := []struct {
		sort string
		want string
	}{
		{models.SortRecency, "ORDER BY last_seen DESC, id"},
		{models.SortPriceAsc, "ORDER BY price ASC NULLS LAST, id"},
		{models.SortPriceDesc, "ORDER BY price DESC NULLS LAST, id"},
		{models.SortYearDesc, "ORDER BY year DESC NULLS LAST, id"},
		{models.SortMileageAsc, "ORDER BY mileage ASC NULLS LAST, id"},
		{"", "ORDER BY last_seen DESC, id"},
		{"bogus", "ORDER BY last_seen DESC, id"},
	}

	for _, tt := range tests {
		if got := orderClause(tt.sort); got != tt.want {
			t.Errorf("orderClause(%q) = %q; want %q", tt.sort, got, tt.want)
		}
	}
}
