package db

import (
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
)

var dialect = goqu.Dialect("postgres")

// From starts a SELECT with numbered placeholders ($1, $2, ...).
func From(table interface{}) *goqu.SelectDataset {
	return dialect.From(table).Prepared(true)
}

// Update starts an UPDATE with numbered placeholders.
func Update(table interface{}) *goqu.UpdateDataset {
	return dialect.Update(table).Prepared(true)
}

// Insert starts an INSERT with numbered placeholders.
func Insert(table interface{}) *goqu.InsertDataset {
	return dialect.Insert(table).Prepared(true)
}

// Page applies limit/offset when limit is positive.
func Page(ds *goqu.SelectDataset, limit, offset int) *goqu.SelectDataset {
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	if offset > 0 {
		ds = ds.Offset(uint(offset))
	}
	return ds
}

// Count rewrites ds into SELECT COUNT(*) with the same filters.
func Count(ds *goqu.SelectDataset) *goqu.SelectDataset {
	return ds.ClearOrder().ClearLimit().ClearOffset().Select(goqu.COUNT(goqu.Star()))
}

// And combines optional conditions, skipping nils.
func And(conds ...exp.Expression) exp.ExpressionList {
	kept := make([]exp.Expression, 0, len(conds))
	for _, c := range conds {
		if c != nil {
			kept = append(kept, c)
		}
	}
	return goqu.And(kept...)
}
