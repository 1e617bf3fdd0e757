package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// Sample is one periodic observation of a session during a run.
type Sample struct {
	Time    float64
	FPS     int
	Delta   float64
	Sent    uint64
	Skipped uint64
	Objects int
}

// ObjectPose is an object's final position when the run ended. Speed is
// negative for a body the simulation side reported asleep.
type ObjectPose struct {
	Name     string     `json:"name"`
	Position [3]float64 `json:"position"`
	Speed    float64    `json:"speed,omitempty"`
}

func (p ObjectPose) Sleeping() bool { return p.Speed < 0 }

type RunMetadata struct {
	ID        string             `json:"id"`
	Scene     string             `json:"scene"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      uint64             `json:"seed"`
	FPS       int                `json:"fps"`
	Duration  float64            `json:"duration"`
	Transport string             `json:"transport"`
	Mode      string             `json:"mode"`
	Metrics   map[string]float64 `json:"metrics"`
	Objects   []ObjectPose       `json:"objects,omitempty"`
}

// Run is a finished recording ready to be saved.
type Run struct {
	Meta    RunMetadata
	Samples []Sample
}

var sampleHeader = []string{"time", "fps", "delta", "sent", "skipped", "objects"}

// Save writes a run under a fresh id and returns that id.
func (s *Store) Save(run Run) (string, error) {
	meta := run.Meta
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	runID := fmt.Sprintf("%s_%d", meta.Scene, meta.Timestamp.UnixNano())
	meta.ID = runID
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "samples.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write(sampleHeader); err != nil {
		return "", err
	}
	for _, smp := range run.Samples {
		row := []string{
			strconv.FormatFloat(smp.Time, 'f', 6, 64),
			strconv.Itoa(smp.FPS),
			strconv.FormatFloat(smp.Delta, 'f', 6, 64),
			strconv.FormatUint(smp.Sent, 10),
			strconv.FormatUint(smp.Skipped, 10),
			strconv.Itoa(smp.Objects),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return runID, nil
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadSamples reads a run's samples. Malformed rows are skipped.
func (s *Store) LoadSamples(runID string) ([]Sample, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "samples.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []Sample{}, nil
	}

	samples := make([]Sample, 0, len(records)-1)
	for _, rec := range records[1:] {
		smp, err := parseSample(rec)
		if err != nil {
			continue
		}
		samples = append(samples, smp)
	}
	return samples, nil
}

func parseSample(rec []string) (Sample, error) {
	if len(rec) != len(sampleHeader) {
		return Sample{}, fmt.Errorf("expected %d fields, got %d", len(sampleHeader), len(rec))
	}
	var (
		smp Sample
		err error
	)
	if smp.Time, err = strconv.ParseFloat(rec[0], 64); err != nil {
		return smp, err
	}
	if smp.FPS, err = strconv.Atoi(rec[1]); err != nil {
		return smp, err
	}
	if smp.Delta, err = strconv.ParseFloat(rec[2], 64); err != nil {
		return smp, err
	}
	if smp.Sent, err = strconv.ParseUint(rec[3], 10, 64); err != nil {
		return smp, err
	}
	if smp.Skipped, err = strconv.ParseUint(rec[4], 10, 64); err != nil {
		return smp, err
	}
	if smp.Objects, err = strconv.Atoi(rec[5]); err != nil {
		return smp, err
	}
	return smp, nil
}
