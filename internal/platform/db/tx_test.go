package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/doug-martin/goqu/v9"
)

func TestNopTxRunner_PropagatesError(t *testing.T) {
	want := errors.New("boom")
	err := NopTxRunner{}.WithTx(context.Background(), func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestBuilder_UsesNumberedPlaceholders(t *testing.T) {
	ds := From("claims").
		Where(And(goqu.C("status").Eq("paid"), nil, goqu.C("payer_id").Eq("AET"))).
		Order(goqu.C("created_at").Desc())

	sql, args, err := Page(ds, 10, 20).ToSQL()
	if err != nil {
		t.Fatalf("ToSQL: %v", err)
	}
	for _, frag := range []string{`"status" = $1`, `"payer_id" = $2`, "LIMIT $3", "OFFSET $4"} {
		if !strings.Contains(sql, frag) {
			t.Errorf("expected %q in %s", frag, sql)
		}
	}
	if len(args) != 4 {
		t.Errorf("expected 4 args, got %v", args)
	}

	countSQL, countArgs, err := Count(ds).ToSQL()
	if err != nil {
		t.Fatalf("count ToSQL: %v", err)
	}
	if !strings.Contains(countSQL, "COUNT(*)") || strings.Contains(countSQL, "ORDER BY") {
		t.Errorf("unexpected count SQL %s", countSQL)
	}
	if len(countArgs) != 2 {
		t.Errorf("expected 2 count args, got %v", countArgs)
	}
}
