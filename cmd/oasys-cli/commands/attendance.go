package commands

import (
	"errors"
	"fmt"
	"os"

	"oasys-backend/lib/attendance"
	"oasys-backend/lib/statestore"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(attendanceCmd)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func renderSnapshot(netid string, snapshot attendance.Snapshot) {
	if netid != "" {
		fmt.Printf("Attendance for %s\n", netid)
	}

	t := newTable()
	t.AppendHeader(table.Row{"Code", "Course", "Attended", "Held", "%", "Action"})
	for _, course := range snapshot.Courses {
		skip := ""
		if course.SkipBudget != nil {
			skip = fmt.Sprintf("%+d", *course.SkipBudget)
		}
		t.AppendRow(table.Row{
			course.Code,
			course.Name,
			course.Attended,
			course.Held,
			fmt.Sprintf("%.2f", course.Percentage),
			fmt.Sprintf("%s %s", course.Action, skip),
		})
	}
	t.AppendFooter(table.Row{
		"", "Overall",
		snapshot.TotalAttended,
		snapshot.TotalHeld,
		fmt.Sprintf("%.2f", snapshot.OverallPercentage),
		"",
	})
	t.Render()

	fmt.Println("captured at", snapshot.CapturedAt.Format("2006-01-02 15:04"))
}

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Show the attendance table from the most recent login.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store := openStore()
		defer store.Close()

		html, ok, err := store.GetSession(ctx, statestore.KeyAttendanceHtml)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("No attendance data found. Please login first.")
			return nil
		}

		snapshot, err := attendance.Extract(html)
		if errors.Is(err, attendance.ErrNoTable) {
			fmt.Println("No attendance data found for your account.")
			return nil
		}
		if err != nil {
			return err
		}

		netid, _, err := store.GetSession(ctx, statestore.KeyNetid)
		if err != nil {
			return err
		}
		renderSnapshot(netid, snapshot)
		return nil
	},
}
