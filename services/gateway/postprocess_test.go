package gateway

import (
	"strings"
	"testing"

	"oasys-backend/lib/attendance"

	"github.com/stretchr/testify/require"
)

func row(cells ...string) string {
	var b strings.Builder
	b.WriteString("<tr>")
	for _, c := range cells {
		b.WriteString("<td>")
		b.WriteString(c)
		b.WriteString("</td>")
	}
	b.WriteString("</tr>")
	return b.String()
}

func TestPostprocessAttendance(t *testing.T) {
	raw := "<html><body><table>" +
		"<tr><th>Course</th><th>Code</th><th>Held</th><th>Attended</th><th>a</th><th>b</th><th>c</th><th>d</th></tr>" +
		row("Data Structures", "CS201", "40", "35", "-", "-", "-", "-") +
		row("Physics Lab", "PH101", "20", "12", "-", "-", "-", "-") +
		row("Chemistry", "CH101", "40", "30", "-", "-", "-", "-") +
		row("Overload", "OV1", "40", "45", "-", "-", "-", "-") +
		row("Total", "", "140", "122", "-", "-", "-", "-") +
		row("Short", "S1", "10") +
		"</table></body></html>"

	processed, err := PostprocessAttendance(raw)
	if err != nil {
		t.Fatal(err)
	}

	require.Contains(t, processed, "<th>Action</th>")
	require.Contains(t, processed, "Can bunk 6 hrs")
	require.Contains(t, processed, "Attend 12 hrs")
	require.Contains(t, processed, "Exactly at 75%")
	require.Contains(t, processed, "Invalid values")
	require.Contains(t, processed, "Course-wise Attendance")

	// the summary row and the malformed row get no action cell, so
	// exactly four styled cells were appended overall
	require.Equal(t, 4, strings.Count(processed, `<td style=`))
}

func TestPostprocessNoTable(t *testing.T) {
	_, err := PostprocessAttendance("<html><body><h3>No data</h3></body></html>")
	require.ErrorIs(t, err, ErrNoAttendanceTable)
}

// the appended column must be readable back by the snapshot extractor
func TestPostprocessExtractRoundTrip(t *testing.T) {
	raw := "<table>" +
		"<tr><th>h</th><th>h</th><th>h</th><th>h</th><th>h</th><th>h</th><th>h</th><th>h</th></tr>" +
		row("Data Structures", "CS201", "40", "35", "-", "-", "-", "-") +
		row("Physics Lab", "PH101", "20", "12", "-", "-", "-", "-") +
		row("Chemistry", "CH101", "40", "30", "-", "-", "-", "-") +
		"</table>"

	processed, err := PostprocessAttendance(raw)
	if err != nil {
		t.Fatal(err)
	}

	snapshot, err := attendance.Extract(processed)
	require.NoError(t, err)
	require.Len(t, snapshot.Courses, 3)

	budgets := []int{}
	for _, course := range snapshot.Courses {
		require.NotNil(t, course.SkipBudget, "course %s", course.Name)
		budgets = append(budgets, *course.SkipBudget)
	}
	require.Equal(t, []int{6, -12, 0}, budgets)
}

func TestActionForRow(t *testing.T) {
	cases := []struct {
		present, total int
		action         string
	}{
		{35, 40, "Can bunk 6 hrs"},
		{12, 20, "Attend 12 hrs"},
		{30, 40, "Exactly at 75%"},
		{40, 40, "Can bunk 13 hrs"},
		{0, 20, "Attend 60 hrs"},
		{45, 40, "Invalid values"},
		{-1, 40, "Invalid values"},
		{0, 0, "Invalid values"},
	}
	for _, c := range cases {
		action, _ := actionForRow(c.present, c.total)
		require.Equal(t, c.action, action, "present=%d total=%d", c.present, c.total)
	}
}
