package schedule

// ActiveEntry returns the entry that represents the device's expected state
// right now, for display purposes only. This is the entry with the smallest
// non-negative distance in the past, treating entries after nowMinutes as
// belonging to yesterday's cycle (an entry at 23:00 is still "active" at
// 01:00 the next day). It is computed independently of Evaluator.Evaluate
// and must never be used to issue commands.
func ActiveEntry(nowMinutes int, entries []Entry) (Entry, bool) {
	const day = 24 * 60

	bestAge := -1
	var bestEntry Entry

	for _, entry := range entries {
		minutes, err := entry.Minutes()
		if err != nil || !entry.Action.Valid() {
			continue
		}
		age := nowMinutes - minutes
		if age < 0 {
			age = day - minutes + nowMinutes
		}
		if bestAge < 0 || age < bestAge {
			bestAge = age
			bestEntry = entry
		}
	}
	return bestEntry, bestAge >= 0
}

// NextEntry returns the first entry later than nowMinutes, for "next action"
// displays. ok is false if no entry remains today.
func NextEntry(nowMinutes int, entries []Entry) (Entry, bool) {
	best := -1
	var bestEntry Entry
	for _, entry := range entries {
		minutes, err := entry.Minutes()
		if err != nil || !entry.Action.Valid() {
			continue
		}
		if minutes > nowMinutes && (best < 0 || minutes < best) {
			best = minutes
			bestEntry = entry
		}
	}
	return bestEntry, best >= 0
}
