package intake

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refset/prevd-classifier/internal/classifier"
)

func TestParseCSV(t *testing.T) {
	in := "\ufeff PMF ,좋았던 점,,좋았던 점\n" +
		"매우 아쉬움, 추천이 정확해요 ,x,배송도 빨라요\n" +
		" , , , \n" +
		"조금 아쉬움,괜찮아요\n"

	up, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"PMF", "좋았던 점", "", "좋았던 점"}, up.Headers)
	require.Len(t, up.Rows, 2, "blank row dropped")

	first := up.Rows[0]
	want := map[string]string{
		"PMF":      "매우 아쉬움",
		"좋았던 점":    "추천이 정확해요\n---\n배송도 빨라요",
		"column_3": "x",
	}
	if diff := cmp.Diff(want, first.RawData); diff != "" {
		t.Errorf("rawData mismatch (-want +got):\n%s", diff)
	}
	wantEntries := []classifier.RawEntry{
		{Header: "PMF", Value: "매우 아쉬움", ColumnIndex: 0},
		{Header: "좋았던 점", Value: "추천이 정확해요", ColumnIndex: 1},
		{Header: "column_3", Value: "x", ColumnIndex: 2},
		{Header: "좋았던 점", Value: "배송도 빨라요", ColumnIndex: 3},
	}
	if diff := cmp.Diff(wantEntries, first.RawEntries); diff != "" {
		t.Errorf("rawEntries mismatch (-want +got):\n%s", diff)
	}

	short := up.Rows[1]
	assert.Len(t, short.RawEntries, 4, "short rows are padded to the header width")
	assert.Equal(t, "괜찮아요\n---", short.RawData["좋았던 점"], "joined value is trimmed")
}

func TestParseCSVDropsBlankRowsWithRepeatedHeaders(t *testing.T) {
	up, err := ParseCSV(strings.NewReader("q,q,r\n , ,\n,,\n,답변,\n"))
	require.NoError(t, err)
	require.Len(t, up.Rows, 1)
	assert.Equal(t, "---\n답변", up.Rows[0].RawData["q"])

	_, err = ParseCSV(strings.NewReader("q,q\n,\n \t, \n"))
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestParseCSVExtraCells(t *testing.T) {
	up, err := ParseCSV(strings.NewReader("a\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "column_2": "2"}, up.Rows[0].RawData)
}

func TestParseCSVErrors(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrNoData))

	_, err = ParseCSV(strings.NewReader("a,b\n,\n"))
	assert.True(t, errors.Is(err, ErrNoRows))

	_, err = ParseCSV(strings.NewReader("a,b\n"))
	assert.True(t, errors.Is(err, ErrNoRows))
}

func TestColumnName(t *testing.T) {
	h := []string{"A", " "}
	assert.Equal(t, "A", ColumnName(h, 0))
	assert.Equal(t, "column_2", ColumnName(h, 1))
	assert.Equal(t, "column_5", ColumnName(h, 4))
}
