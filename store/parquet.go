// Package store persists rollout episodes as zstd-compressed parquet
// batches, written atomically so readers never observe partial files.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// StepRow is one (episode, cycle, population) record.
//
// It is self-contained: the grid parameters are repeated on every row so a
// batch can mix games with different configurations and still be queried
// without a side table.
type StepRow struct {
	EpisodeID  string `parquet:"episode_id,dict"`
	Population int32  `parquet:"population"`
	T          int32  `parquet:"t"`

	X      int32 `parquet:"x"`
	Y      int32 `parquet:"y"`
	Action int32 `parquet:"action"`

	Size     int32  `parquet:"size"`
	Horizon  int32  `parquet:"horizon"`
	Geometry string `parquet:"geometry,dict"`

	// Reward is this population's own reward for the cycle; Rewards is the
	// full per-population vector it was taken from.
	Reward  float64   `parquet:"reward"`
	Rewards []float64 `parquet:"rewards"`

	// CellDensities is every population's mass on the agent's cell when
	// the reward was computed.
	CellDensities []float64 `parquet:"cell_densities"`

	Source string `parquet:"source,dict"`
}

const schemaMetadata = "step_row_v1"

func writeOptions() []parquet.WriterOption {
	return []parquet.WriterOption{
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", schemaMetadata),
	}
}

// WriteEpisodeParquet writes rows to outPath via a temp file and an atomic
// rename.
func WriteEpisodeParquet(outPath string, rows []StepRow) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows, writeOptions()...); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// WriteBatchParquetAtomic writes a batch file into outDir/tmp and then
// atomically moves it into outDir. Long-running writers use this so that
// pollers of outDir only ever see complete batches.
func WriteBatchParquetAtomic(outDir string, rows []StepRow) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows, writeOptions()...); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return finalPath, nil
}

// ReadStepRows loads every row of a parquet batch. Intended for tools and
// tests; the viewer queries batches with SQL instead.
func ReadStepRows(path string) ([]StepRow, error) {
	rows, err := parquet.ReadFile[StepRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return rows, nil
}
