package main

// EpisodeSummary is one archived episode as listed by /api/episodes.
type EpisodeSummary struct {
	EpisodeID string `json:"episode_id"`
	// StartedNs is parsed from episode ids with format
	// rollout_<unix_nano>_<worker>. Nil for other ids.
	StartedNs   *int64 `json:"started_ns"`
	Cycles      int32  `json:"cycles"`
	Steps       int64  `json:"steps"`
	Size        int32  `json:"size"`
	Horizon     int32  `json:"horizon"`
	Geometry    string `json:"geometry"`
	Populations int32  `json:"populations"`
	Source      string `json:"source"`
}

type EpisodesResponse struct {
	Total    int              `json:"total"`
	Episodes []EpisodeSummary `json:"episodes"`
}

// StepRecord is one (cycle, population) row of an episode.
type StepRecord struct {
	Population int32   `json:"population"`
	T          int32   `json:"t"`
	X          int32   `json:"x"`
	Y          int32   `json:"y"`
	Action     int32   `json:"action"`
	Reward     float64 `json:"reward"`
}

type EpisodeResponse struct {
	EpisodeID string       `json:"episode_id"`
	Steps     []StepRecord `json:"steps"`
}

// OccupancyCell is the visit count of one cell aggregated over the whole
// archive.
type OccupancyCell struct {
	X      int32 `json:"x"`
	Y      int32 `json:"y"`
	Visits int64 `json:"visits"`
}

type OccupancyResponse struct {
	Population int             `json:"population"`
	T          int             `json:"t"`
	Cells      []OccupancyCell `json:"cells"`
}

// LiveFrame is one step of the streamed mean-field flow: per-population
// density grids indexed by merged position id (y*size+x).
type LiveFrame struct {
	T        int         `json:"t"`
	Size     int         `json:"size"`
	Geometry string      `json:"geometry"`
	Grids    [][]float64 `json:"grids"`
}
