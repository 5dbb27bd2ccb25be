package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic(err)
	}
}

// force timestamps into the portal's timezone so snapshots captured
// from servers hosted elsewhere still read sensibly
func Now() time.Time {
	return time.Now().In(Location)
}
