// Package timeslot computes the (base_date, base_time) query parameters the
// Korean public weather APIs expect. Each endpoint publishes on its own
// cadence and lag, so "now" alone is never a valid slot.
package timeslot

import "time"

// KST is the fixed civil zone all upstream slots are expressed in.
var KST = time.FixedZone("KST", 9*60*60)

// Window is a resolved upstream slot: base_date as YYYYMMDD and base_time as
// HHMM with minutes always 00.
type Window struct {
	Date string
	Time string
}

// Observation resolves the slot for the current-observation endpoint
// (getUltraSrtNcst). The endpoint publishes roughly 40 minutes behind the
// hour, so the last slot guaranteed to exist is the hour containing now-40m.
func Observation(now time.Time) Window {
	return hourSlot(now.In(KST).Add(-40 * time.Minute))
}

// ShortForecast resolves the slot for the short-term forecast endpoint
// (getUltraSrtFcst), which lags about 45 minutes.
func ShortForecast(now time.Time) Window {
	return hourSlot(now.In(KST).Add(-45 * time.Minute))
}

// DailyForecast resolves the slot for the daily forecast endpoint
// (getVilageFcst). The endpoint issues every 3 hours, but only the 02:00
// issue of a day carries that day's complete high/low range; later issues
// drop the already-passed early-morning low. Before 02:00 the 02:00 issue
// does not exist yet, so yesterday's final 23:00 issue is used instead.
// Pinning to 02:00 all day is intentional: fresher same-day issues would
// lose the daily extremes.
func DailyForecast(now time.Time) Window {
	kst := now.In(KST)
	if kst.Hour() < 2 {
		y := kst.AddDate(0, 0, -1)
		return Window{Date: y.Format("20060102"), Time: "2300"}
	}
	return Window{Date: kst.Format("20060102"), Time: "0200"}
}

func hourSlot(t time.Time) Window {
	// "15" is the hour token; the trailing "00" is literal (minutes are
	// always on the hour for slot-based endpoints).
	return Window{Date: t.Format("20060102"), Time: t.Format("1500")}
}
