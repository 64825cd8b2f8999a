package storage

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"carscout/models"
)

// buildListingWhere turns a ListingFilter into a WHERE clause and its
// positional args. Filters are conjunctive; absent fields add no condition.
// Only active listings are matched.
func buildListingWhere(f models.ListingFilter) (string, []interface{}) {
	conds := []string{"is_active = TRUE"}
	var args []interface{}

	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.MinPrice != nil {
		add("price >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("price <= $%d", *f.MaxPrice)
	}
	if f.MinYear != nil {
		add("year >= $%d", *f.MinYear)
	}
	if f.MaxYear != nil {
		add("year <= $%d", *f.MaxYear)
	}
	if f.MinMileage != nil {
		add("mileage >= $%d", *f.MinMileage)
	}
	if f.MaxMileage != nil {
		add("mileage <= $%d", *f.MaxMileage)
	}
	if f.Department != "" {
		add("department = $%d", f.Department)
	}
	if len(f.FuelTypes) > 0 {
		add("fuel_type = ANY($%d)", pq.Array(f.FuelTypes))
	}
	if len(f.SellerTypes) > 0 {
		add("seller_type = ANY($%d)", pq.Array(f.SellerTypes))
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

// pageClause builds the OFFSET/LIMIT tail and its args, continuing the
// positional numbering after argc. Limit <= 0 means unbounded, matching the
// in-memory store.
func pageClause(f models.ListingFilter, argc int) (string, []interface{}) {
	clause := fmt.Sprintf("OFFSET $%d", argc+1)
	args := []interface{}{f.Skip}
	if f.Limit > 0 {
		clause += fmt.Sprintf(" LIMIT $%d", argc+2)
		args = append(args, f.Limit)
	}
	return clause, args
}

// orderClause maps a sort key to a stable ORDER BY clause. Unknown keys fall
// back to recency so successive pages stay disjoint. NULLS LAST keeps rows
// with missing numeric fields from leading value-sorted results.
func orderClause(sort string) string {
	switch sort {
	case models.SortPriceAsc:
		return "ORDER BY price ASC NULLS LAST, id"
	case models.SortPriceDesc:
		return "ORDER BY price DESC NULLS LAST, id"
	case models.SortYearDesc:
		return "ORDER BY year DESC NULLS LAST, id"
	case models.SortMileageAsc:
		return "ORDER BY mileage ASC NULLS LAST, id"
	default:
		return "ORDER BY last_seen DESC, id"
	}
}
