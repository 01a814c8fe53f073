package main

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DBCache maintains a cached DuckDB connection plus an episodes index over
// the parquet archive, refreshed periodically so new batches show up
// without restarting the viewer.
type DBCache struct {
	roots       []string
	refreshRate time.Duration

	mu          sync.RWMutex
	db          *sql.DB
	lastRefresh time.Time

	episodesIndex []EpisodeSummary
	indexTime     time.Time
}

func NewDBCache(roots []string, refreshRate time.Duration) *DBCache {
	return &DBCache{
		roots:       roots,
		refreshRate: refreshRate,
	}
}

// parquetGlobs lists the read_parquet source patterns for every root.
func (c *DBCache) parquetGlobs() []string {
	globs := make([]string, 0, len(c.roots))
	for _, root := range c.roots {
		globs = append(globs, filepath.Join(root, "*.parquet"))
	}
	return globs
}

// sourceExpr builds the read_parquet() expression used by every query.
func (c *DBCache) sourceExpr() string {
	quoted := make([]string, 0, len(c.roots))
	for _, g := range c.parquetGlobs() {
		quoted = append(quoted, "'"+strings.ReplaceAll(g, "'", "''")+"'")
	}
	return "read_parquet([" + strings.Join(quoted, ", ") + "], union_by_name=true)"
}

// Get returns the cached DB connection, opening it on first use.
func (c *DBCache) Get() (*sql.DB, error) {
	c.mu.RLock()
	if c.db != nil {
		db := c.db
		c.mu.RUnlock()
		return db, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db, nil
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	c.db = db
	return db, nil
}

// Episodes returns the cached episode index, refreshing it if stale.
func (c *DBCache) Episodes() ([]EpisodeSummary, error) {
	c.mu.RLock()
	if c.episodesIndex != nil && time.Since(c.indexTime) < c.refreshRate {
		idx := c.episodesIndex
		c.mu.RUnlock()
		return idx, nil
	}
	c.mu.RUnlock()

	db, err := c.Get()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT episode_id,
		       max(t) + 1 AS cycles,
		       count(*) AS steps,
		       any_value(size) AS size,
		       any_value(horizon) AS horizon,
		       any_value(geometry) AS geometry,
		       count(DISTINCT population) AS populations,
		       any_value(source) AS source
		FROM ` + c.sourceExpr() + `
		GROUP BY episode_id`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	index := make([]EpisodeSummary, 0, 256)
	for rows.Next() {
		var s EpisodeSummary
		if err := rows.Scan(&s.EpisodeID, &s.Cycles, &s.Steps, &s.Size,
			&s.Horizon, &s.Geometry, &s.Populations, &s.Source); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		s.StartedNs = parseStartedNs(s.EpisodeID)
		index = append(index, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest first; episodes without a timestamp sort last by id.
	sort.Slice(index, func(i, j int) bool {
		a, b := index[i].StartedNs, index[j].StartedNs
		switch {
		case a != nil && b != nil:
			return *a > *b
		case a != nil:
			return true
		case b != nil:
			return false
		}
		return index[i].EpisodeID < index[j].EpisodeID
	})

	c.mu.Lock()
	c.episodesIndex = index
	c.indexTime = time.Now()
	c.mu.Unlock()
	return index, nil
}

// EpisodeSteps loads every step row of one episode, cycle-major.
func (c *DBCache) EpisodeSteps(episodeID string) ([]StepRecord, error) {
	db, err := c.Get()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT population, t, x, y, action, reward
		FROM ` + c.sourceExpr() + `
		WHERE episode_id = ?
		ORDER BY t, population`

	rows, err := db.Query(query, episodeID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := make([]StepRecord, 0, 64)
	for rows.Next() {
		var s StepRecord
		if err := rows.Scan(&s.Population, &s.T, &s.X, &s.Y, &s.Action, &s.Reward); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// Occupancy aggregates visit counts per cell across the whole archive for
// one population at one time step.
func (c *DBCache) Occupancy(population, t int) ([]OccupancyCell, error) {
	db, err := c.Get()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT x, y, count(*) AS visits
		FROM ` + c.sourceExpr() + `
		WHERE population = ? AND t = ?
		GROUP BY x, y
		ORDER BY y, x`

	rows, err := db.Query(query, population, t)
	if err != nil {
		return nil, fmt.Errorf("query occupancy: %w", err)
	}
	defer rows.Close()

	cells := make([]OccupancyCell, 0, 128)
	for rows.Next() {
		var cell OccupancyCell
		if err := rows.Scan(&cell.X, &cell.Y, &cell.Visits); err != nil {
			return nil, fmt.Errorf("scan occupancy: %w", err)
		}
		cells = append(cells, cell)
	}
	return cells, rows.Err()
}

func (c *DBCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// parseStartedNs extracts the timestamp from rollout_<unix_nano>_<worker>
// episode ids.
func parseStartedNs(episodeID string) *int64 {
	parts := strings.Split(episodeID, "_")
	if len(parts) != 3 || parts[0] != "rollout" {
		return nil
	}
	ns, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil
	}
	return &ns
}
