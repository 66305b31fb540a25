package weather

import (
	"fmt"
	"sort"
	"time"
)

// BuildSnapshot turns a provider forecast into a fully populated snapshot:
// hourly entries from the current hour onward trimmed to HourlyWindow, daily
// entries from today onward trimmed to DailyWindow. A forecast that can't
// fill both windows is rejected with a *ProviderError so the cache never
// stores a partial snapshot.
func BuildSnapshot(coords Coordinates, f ProviderForecast, fetchedAt time.Time) (WeatherSnapshot, error) {
	fetchedAt = fetchedAt.UTC()

	hourly := append([]HourlyForecast(nil), f.Hourly...)
	sort.SliceStable(hourly, func(i, j int) bool { return hourly[i].Time.Before(hourly[j].Time) })
	hourStart := fetchedAt.Truncate(time.Hour)
	i := 0
	for i < len(hourly) && hourly[i].Time.Before(hourStart) {
		i++
	}
	hourly = hourly[i:]
	if len(hourly) < HourlyWindow {
		return WeatherSnapshot{}, &ProviderError{
			Provider: f.ProviderName,
			Reason:   fmt.Sprintf("hourly series has %d upcoming entries, need %d", len(hourly), HourlyWindow),
		}
	}
	hourly = hourly[:HourlyWindow]

	daily := append([]DailyForecast(nil), f.Daily...)
	sort.SliceStable(daily, func(i, j int) bool { return daily[i].Date.Before(daily[j].Date) })
	today := midnightUTC(fetchedAt)
	j := 0
	for j < len(daily) && midnightUTC(daily[j].Date).Before(today) {
		j++
	}
	daily = daily[j:]
	if len(daily) < DailyWindow {
		return WeatherSnapshot{}, &ProviderError{
			Provider: f.ProviderName,
			Reason:   fmt.Sprintf("daily series has %d upcoming entries, need %d", len(daily), DailyWindow),
		}
	}
	daily = daily[:DailyWindow]
	for k := range daily {
		daily[k].Date = midnightUTC(daily[k].Date)
	}

	current := f.Current
	if current.Time.IsZero() {
		current.Time = fetchedAt
	}
	current.Time = current.Time.UTC()
	if current.Condition == "" || current.Condition == ConditionUnknown {
		current.Condition = dominantCondition(hourly[:3])
	}

	return WeatherSnapshot{
		LocationKey: KeyFor(coords),
		Coordinates: coords,
		Current:     current,
		Hourly:      hourly,
		Daily:       daily,
		FetchedAt:   fetchedAt,
		Provider:    f.ProviderName,
	}, nil
}

// dominantCondition picks the most frequent condition; ties go to the earliest entry.
func dominantCondition(entries []HourlyForecast) Condition {
	counts := make(map[Condition]int)
	best := ConditionUnknown
	bestCount := 0
	for _, e := range entries {
		if e.Condition == "" || e.Condition == ConditionUnknown {
			continue
		}
		counts[e.Condition]++
		if counts[e.Condition] > bestCount {
			bestCount = counts[e.Condition]
			best = e.Condition
		}
	}
	return best
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
