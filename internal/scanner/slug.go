package scanner

import (
	"fmt"
	"strings"
	"time"
)

// Los slugs horarios se generan con la hora de Nueva York, que es la zona
// que usa Polymarket para nombrarlos.
var easternTime = mustLoadET()

func mustLoadET() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic("scanner: load America/New_York: " + err.Error())
	}
	return loc
}

// SlugFor genera el slug del evento "bitcoin up or down" cuya hora empieza
// en start, p.ej. "bitcoin-up-or-down-august-24-3pm-et".
func SlugFor(asset string, start time.Time) string {
	et := start.In(easternTime)

	hour := et.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	meridiem := "am"
	if et.Hour() >= 12 {
		meridiem = "pm"
	}

	month := strings.ToLower(et.Month().String())
	return fmt.Sprintf("%s-up-or-down-%s-%d-%d%s-et", asset, month, et.Day(), hour, meridiem)
}

// HourStart trunca un instante al comienzo de su hora, en UTC.
func HourStart(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// UpcomingHours devuelve los comienzos de hora desde la hora actual (incluida)
// hasta lookAhead en el futuro.
func UpcomingHours(now time.Time, lookAhead time.Duration) []time.Time {
	start := HourStart(now)
	end := now.Add(lookAhead)

	var hours []time.Time
	for t := start; t.Before(end); t = t.Add(time.Hour) {
		hours = append(hours, t)
	}
	return hours
}
