package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestCellText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		"<table><tr>" +
			"<td>  Data\n   Structures\t</td>" +
			"<td><b>40</b> hrs</td>" +
			"<td></td>" +
			"</tr></table>",
	))
	if err != nil {
		t.Fatal(err)
	}

	cells := doc.Find("td")
	require.Equal(t, "Data Structures", CellText(cells.Eq(0)))
	require.Equal(t, "40 hrs", CellText(cells.Eq(1)))
	require.Equal(t, "", CellText(cells.Eq(2)))
}
