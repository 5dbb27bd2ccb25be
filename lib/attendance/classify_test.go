package attendance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyAction(t *testing.T) {
	cases := []struct {
		hint   string
		budget *int
	}{
		{"Can bunk 3 hrs", intPtr(3)},
		{"can miss 12 classes", intPtr(12)},
		{"CAN skip 1", intPtr(1)},
		{"Attend 4 hrs", intPtr(-4)},
		{"attend 10 classes", intPtr(-10)},
		{"Exactly at 75%", intPtr(0)},
		{"exactly on the line", intPtr(0)},
		{"", nil},
		{"Looking good", nil},
		{"Attendance: fine", nil},
	}

	for _, c := range cases {
		got := ClassifyAction(c.hint)
		if c.budget == nil {
			require.Nil(t, got, "hint %q", c.hint)
			continue
		}
		require.NotNil(t, got, "hint %q", c.hint)
		require.Equal(t, *c.budget, *got, "hint %q", c.hint)
	}
}

// when a hint matches several patterns the earliest one decides
func TestClassifyActionOrdering(t *testing.T) {
	{
		got := ClassifyAction("Can bunk 2 hrs, exactly on the line after")
		require.NotNil(t, got)
		require.Equal(t, 2, *got)
	}
	{
		got := ClassifyAction("Attend 5 hrs to be exactly at 75%")
		require.NotNil(t, got)
		require.Equal(t, -5, *got)
	}
}

func intPtr(n int) *int {
	return &n
}
