package gateway

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"oasys-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoAttendanceTable is reported when the report page carries no
// table, which the portal does for accounts with no attendance data.
var ErrNoAttendanceTable = fmt.Errorf("attendance table not found")

// the portal's minimum attendance requirement, in percent
const attendanceFloor = 75

// classes the student must still attend to climb back to the floor
func requiredAttendance(present, total int) int {
	return int(math.Ceil(
		float64(attendanceFloor*total-100*present) / float64(100-attendanceFloor),
	))
}

// classes the student can still miss without dropping below the floor
func bunkableClasses(present, total int) int {
	return int(math.Floor(
		float64(100*present-attendanceFloor*total) / float64(attendanceFloor),
	))
}

func actionForRow(present, total int) (action, color string) {
	percent := 0.0
	if total > 0 {
		percent = float64(present) / float64(total) * 100
	}

	switch {
	case present < 0 || total <= 0 || present > total:
		return "Invalid values", "#ffcccc"
	case percent >= attendanceFloor:
		bunk := bunkableClasses(present, total)
		if bunk > 0 {
			return fmt.Sprintf("Can bunk %d hrs", bunk), "#e6ffe6"
		}
		return fmt.Sprintf("Exactly at %d%%", attendanceFloor), "#fff2cc"
	default:
		need := requiredAttendance(present, total)
		return fmt.Sprintf("Attend %d hrs", need), "#ffe5e5"
	}
}

const reportShell = `<html>
<head>
    <meta charset="utf-8"/>
    <title>OASYS Attendance</title>
    <style>
        body { font-family: Arial, sans-serif; background: #f9f9f9; padding: 20px; }
        table { border-collapse: collapse; width: 100%%; background: white; box-shadow: 0 0 10px rgba(0,0,0,0.1); }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: center; }
        th { background-color: #003366; color: white; }
    </style>
</head>
<body>
    <h2>Course-wise Attendance</h2>
    %s
</body>
</html>
`

// PostprocessAttendance appends an Action column to the raw report
// table: per data row it derives the "Can bunk N hrs" / "Attend N hrs"
// / "Exactly at 75%" hint from the held and attended counts, then
// wraps the table in the report page shell.
func PostprocessAttendance(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return "", ErrNoAttendanceTable
	}

	table.Find("tr").First().AppendHtml("<th>Action</th>")

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 8 {
			return
		}
		// the portal closes the table with a summary row
		if strings.Contains(htmlutil.CellText(cells.Eq(0)), "Total") {
			return
		}

		total, err := strconv.Atoi(htmlutil.CellText(cells.Eq(2)))
		if err != nil {
			return
		}
		present, err := strconv.Atoi(htmlutil.CellText(cells.Eq(3)))
		if err != nil {
			return
		}

		action, color := actionForRow(present, total)
		row.AppendHtml(fmt.Sprintf(
			`<td style="background:%s; font-weight:bold; text-align:center;">%s</td>`,
			color, action,
		))
	})

	tableHtml, err := goquery.OuterHtml(table)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(reportShell, tableHtml), nil
}
