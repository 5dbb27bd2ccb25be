// Package attendance turns the raw attendance page returned on a
// successful login into a typed, aggregated snapshot. It is purely
// functional over its input and performs no I/O.
package attendance

import (
	"fmt"
	"math"
	"strings"
	"time"

	"oasys-backend/lib/htmlutil"
	"oasys-backend/lib/textutil"
	"oasys-backend/lib/timezone"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoTable is reported when the supplied document contains no table
// element at all, which is how the portal signals "no attendance data".
var ErrNoTable = fmt.Errorf("no attendance table found in document")

// swappable in tests
var now = timezone.Now

type Course struct {
	// Id is the normalized course name; the portal exposes no stabler
	// identity, and normalizing keeps it constant across the spacing
	// and casing quirks of different report renders.
	Id   string
	Code string
	Name string
	// Attended may exceed Held on anomalous portal data. Figures are
	// passed through uncorrected.
	Attended   int
	Held       int
	Percentage float64
	// Action carries the raw hint text from the last table cell.
	Action string
	// SkipBudget is nil when the hint text matched none of the known
	// phrasings. Positive: absences still affordable, negative:
	// classes still required, zero: exactly at the threshold.
	SkipBudget *int
}

type Snapshot struct {
	Courses           []Course
	OverallPercentage float64
	TotalAttended     int
	TotalHeld         int
	CapturedAt        time.Time
}

// Round2 rounds to two decimal places, half away from zero. All
// percentage figures in a snapshot go through this so tests can pin
// exact values.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Percentage computes attended/held*100 rounded via Round2, or 0 when
// held is 0.
func Percentage(attended, held int) float64 {
	if held == 0 {
		return 0
	}
	return Round2(float64(attended) / float64(held) * 100)
}

// Extract parses the attendance page and produces a snapshot stamped
// with the capture time.
//
// Rows are read by fixed cell position: 0 course name, 1 optional
// course code, 2 classes held, 3 classes attended, last cell the
// free-text action hint. Count cells are parsed digits-only. Rows with
// fewer than four cells are skipped, they are malformed rather than
// fatal.
func Extract(html string) (Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Snapshot{}, err
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return Snapshot{}, ErrNoTable
	}

	var courses []Course
	totalHeld := 0
	totalAttended := 0

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			// header
			return
		}
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}

		name := htmlutil.CellText(cells.Eq(0))
		if name == "" {
			name = "Unknown"
		}
		code := htmlutil.CellText(cells.Eq(1))
		held := textutil.ParseCount(htmlutil.CellText(cells.Eq(2)))
		attended := textutil.ParseCount(htmlutil.CellText(cells.Eq(3)))
		action := htmlutil.CellText(cells.Eq(cells.Length() - 1))

		courses = append(courses, Course{
			Id:         textutil.NormalizeName(name),
			Code:       code,
			Name:       name,
			Attended:   attended,
			Held:       held,
			Percentage: Percentage(attended, held),
			Action:     action,
			SkipBudget: ClassifyAction(action),
		})

		totalHeld += held
		totalAttended += attended
	})

	return Snapshot{
		Courses:           courses,
		OverallPercentage: Aggregate(totalAttended, totalHeld),
		TotalAttended:     totalAttended,
		TotalHeld:         totalHeld,
		CapturedAt:        now(),
	}, nil
}

// Aggregate reduces accumulated totals into the overall percentage,
// using the same rounding rule as the per-course figures.
func Aggregate(totalAttended, totalHeld int) float64 {
	return Percentage(totalAttended, totalHeld)
}
