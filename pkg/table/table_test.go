package table

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend_ChecksWidth(t *testing.T) {
	tbl := New("a", "b")
	require.NoError(t, tbl.Append(1, 2))
	require.Error(t, tbl.Append(1))
	assert.Equal(t, 1, tbl.Len())
}

func TestConcat(t *testing.T) {
	a := New("id", "x")
	require.NoError(t, a.Append("a", 1))
	b := New("id", "y")
	require.NoError(t, b.Append("b", 2))
	c := New("x", "id")
	require.NoError(t, c.Append(3, "c"))

	got := Concat(a, nil, b, c)

	assert.Equal(t, []string{"id", "x", "y"}, got.Columns)
	assert.Equal(t, [][]any{
		{"a", 1, nil},
		{"b", nil, 2},
		{"c", 3, nil},
	}, got.Rows)
}

func TestConcat_Empty(t *testing.T) {
	got := Concat()
	assert.Equal(t, 0, got.Len())
	assert.Empty(t, got.Columns)

	var nilTable *Table
	assert.Equal(t, 0, nilTable.Len())
	assert.Equal(t, -1, nilTable.Index("x"))
}

func TestFilterAndColumn(t *testing.T) {
	tbl := New("n")
	for i := 0; i < 5; i++ {
		require.NoError(t, tbl.Append(i))
	}

	even := tbl.Filter(func(row []any) bool { return row[0].(int)%2 == 0 })

	assert.Equal(t, []any{0, 2, 4}, even.Column("n"))
	assert.Nil(t, even.Column("missing"))
}

func TestWithColumn(t *testing.T) {
	tbl := New("a")
	require.NoError(t, tbl.Append(1))

	got := tbl.WithColumn("study", "s1")

	assert.Equal(t, []string{"a", "study"}, got.Columns)
	assert.Equal(t, [][]any{{1, "s1"}}, got.Rows)
	assert.Equal(t, []string{"a"}, tbl.Columns, "original is unchanged")
}

func TestFromJSON_FlattensInDocumentOrder(t *testing.T) {
	raw := []byte(`[
		{"id": "L1", "startTime": 1000, "duration": 2.5, "tag": {"id": "t1", "value": "seizure"}, "confidence": null},
		{"id": "L2", "startTime": 2000, "tag": {}, "extra": [1, 2]}
	]`)

	got, err := FromJSON(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "startTime", "duration", "tag.id", "tag.value", "confidence", "tag", "extra"}, got.Columns)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, []any{"L1", int64(1000), 2.5, "t1", "seizure", nil, nil, nil}, got.Rows[0])
	assert.Equal(t, "L2", got.Rows[1][0])
	assert.Equal(t, map[string]any{}, got.Rows[1][6])
	assert.Equal(t, []any{int64(1), int64(2)}, got.Rows[1][7])
}

func TestFromJSON_NullAndEmpty(t *testing.T) {
	for _, raw := range []string{`null`, `[]`, ``} {
		got, err := FromJSON([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, 0, got.Len(), raw)
	}
}

func TestFromJSON_RejectsScalars(t *testing.T) {
	_, err := FromJSON([]byte(`[1, 2]`))
	assert.Error(t, err)

	_, err = FromJSON([]byte(`"x"`))
	assert.Error(t, err)
}

func TestFromRecords_SortsKeys(t *testing.T) {
	got := FromRecords([]map[string]any{
		{"b": 1, "a": map[string]any{"y": 2, "x": 3}},
	})

	assert.Equal(t, []string{"a.x", "a.y", "b"}, got.Columns)
	assert.Equal(t, [][]any{{3, 2, 1}}, got.Rows)
}

func TestWriteCSV(t *testing.T) {
	tbl := New("time", "value", "label", "ok")
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, tbl.Append(ts, 1.5, "a,b", true))
	require.NoError(t, tbl.Append(nil, math.NaN(), nil, false))
	require.NoError(t, tbl.Append(int64(7), float32(0.25), 3, nil))

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteCSV(&buf))

	want := "time,value,label,ok\n" +
		"2024-01-02T03:04:05Z,1.5,\"a,b\",true\n" +
		",,,false\n" +
		"7,0.25,3,\n"
	assert.Equal(t, want, buf.String())
}

func TestFormatCell_Nested(t *testing.T) {
	assert.Equal(t, `["t1","t2"]`, FormatCell([]any{"t1", "t2"}))
	assert.Equal(t, `{"id":"t1"}`, FormatCell(map[string]any{"id": "t1"}))
	assert.Equal(t, "[]", FormatCell([]any{}))
}
