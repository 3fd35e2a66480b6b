package bigquery

import (
	"math/big"
	"testing"

	bq "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/lakerun/internal/render"
)

func TestToRow_NestedRecords(t *testing.T) {
	schema := bq.Schema{
		{Name: "name", Type: bq.StringFieldType},
		{Name: "address", Type: bq.RecordFieldType, Schema: bq.Schema{
			{Name: "city", Type: bq.StringFieldType},
			{Name: "zip", Type: bq.StringFieldType},
		}},
		{Name: "tags", Type: bq.StringFieldType, Repeated: true},
		{Name: "amount", Type: bq.NumericFieldType},
	}
	values := []bq.Value{
		"alice",
		[]bq.Value{"Paris", "75001"},
		[]bq.Value{"a", "b"},
		big.NewRat(3, 2),
	}

	got := ToRow(schema, values)

	assert.Equal(t, render.Row{
		{Name: "name", Value: "alice"},
		{Name: "address", Value: render.Row{
			{Name: "city", Value: "Paris"},
			{Name: "zip", Value: "75001"},
		}},
		{Name: "tags", Value: []any{"a", "b"}},
		{Name: "amount", Value: "1.500000000"},
	}, got)

	assert.Equal(t, render.Row{
		{Name: "name", Value: "alice"},
		{Name: "address.city", Value: "Paris"},
		{Name: "address.zip", Value: "75001"},
		{Name: "tags", Value: []any{"a", "b"}},
		{Name: "amount", Value: "1.500000000"},
	}, render.Flatten(got))
}

func TestToRow_RepeatedRecordsAndNulls(t *testing.T) {
	schema := bq.Schema{
		{Name: "id", Type: bq.IntegerFieldType},
		{Name: "items", Type: bq.RecordFieldType, Repeated: true, Schema: bq.Schema{
			{Name: "sku", Type: bq.StringFieldType},
		}},
		{Name: "note", Type: bq.StringFieldType},
	}
	values := []bq.Value{
		int64(7),
		[]bq.Value{[]bq.Value{"x"}, []bq.Value{"y"}},
		nil,
	}

	got := ToRow(schema, values)

	assert.Equal(t, render.Row{
		{Name: "id", Value: int64(7)},
		{Name: "items", Value: []any{
			render.Row{{Name: "sku", Value: "x"}},
			render.Row{{Name: "sku", Value: "y"}},
		}},
		{Name: "note", Value: nil},
	}, got)
}

func TestToRow_ShortValues(t *testing.T) {
	schema := bq.Schema{
		{Name: "a", Type: bq.StringFieldType},
		{Name: "b", Type: bq.StringFieldType},
	}
	got := ToRow(schema, []bq.Value{"only"})
	assert.Equal(t, render.Row{{Name: "a", Value: "only"}, {Name: "b", Value: nil}}, got)
}
