package rollout

import (
	"github.com/brensch/meanfield/store"
)

// StepRows converts a completed episode into archive rows. source tags
// where the episode came from (e.g. "rollout", "viewer-live").
func (e *Episode) StepRows(source string) []store.StepRow {
	rows := make([]store.StepRow, 0, len(e.Steps))
	for _, s := range e.Steps {
		rows = append(rows, store.StepRow{
			EpisodeID:     e.ID,
			Population:    int32(s.Population),
			T:             int32(s.T),
			X:             int32(s.Pos.X),
			Y:             int32(s.Pos.Y),
			Action:        int32(s.Action),
			Size:          int32(e.Size),
			Horizon:       int32(e.Horizon),
			Geometry:      e.Geometry.String(),
			Reward:        s.Rewards[s.Population],
			Rewards:       append([]float64(nil), s.Rewards...),
			CellDensities: append([]float64(nil), s.CellDensities...),
			Source:        source,
		})
	}
	return rows
}
