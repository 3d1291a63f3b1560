package rules

import (
	qcrundomain "iqc-platform/internal/qcrun/domain"
)

// PeerPoint is a same-run measurement from another control level, captured at
// the same run timestamp as the current point.
type PeerPoint struct {
	LevelID string
	Z       *float64
}

// Context holds the eligibility facts the guard needs: which control levels
// are present in the run group, and whether any history exists.
type Context struct {
	AvailableLevels          map[string]bool
	HasHistoricalSeries      bool
	HasMultipleLevelsInGroup bool
}

// BuildContext derives eligibility facts from the evaluation inputs.
// history must be ordered newest-first; peers map levelID to the peer point.
func BuildContext(currentLevelID string, history []qcrundomain.QcDataPoint, peers map[string]PeerPoint) Context {
	levels := make(map[string]bool, 1+len(peers))
	if currentLevelID != "" {
		levels[currentLevelID] = true
	}
	for levelID := range peers {
		if levelID != "" {
			levels[levelID] = true
		}
	}
	return Context{
		AvailableLevels:          levels,
		HasHistoricalSeries:      len(history) > 0,
		HasMultipleLevelsInGroup: 1+len(peers) > 1,
	}
}
