package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testRun(scene string, at time.Time) Run {
	return Run{
		Meta: RunMetadata{
			Scene:     scene,
			Timestamp: at,
			Seed:      42,
			FPS:       60,
			Duration:  1,
			Transport: "pipe",
			Mode:      "zero-copy",
			Metrics:   map[string]float64{"fps": 59.5},
			Objects: []ObjectPose{
				{Name: "crate0", Position: [3]float64{0, 0.5, 0}, Speed: -1},
				{Name: "ball", Position: [3]float64{1, 3, 0}, Speed: 2.5},
			},
		},
		Samples: []Sample{
			{Time: 0.1, FPS: 0, Delta: 0.016, Sent: 6, Objects: 9},
			{Time: 1.1, FPS: 60, Delta: 0.017, Sent: 66, Skipped: 2, Objects: 9},
		},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(testRun("drop", time.Unix(100, 0)))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.ID != runID {
		t.Errorf("expected id %q, got %q", runID, meta.ID)
	}
	if meta.Scene != "drop" {
		t.Errorf("expected scene 'drop', got '%s'", meta.Scene)
	}
	if meta.Seed != 42 {
		t.Errorf("expected seed 42, got %d", meta.Seed)
	}
	if meta.Metrics["fps"] != 59.5 {
		t.Errorf("expected fps 59.5, got %f", meta.Metrics["fps"])
	}
	if len(meta.Objects) != 2 || meta.Objects[0].Position[1] != 0.5 {
		t.Fatalf("unexpected objects %+v", meta.Objects)
	}
	if !meta.Objects[0].Sleeping() || meta.Objects[1].Sleeping() {
		t.Errorf("expected only crate0 asleep, got %+v", meta.Objects)
	}

	samples, err := st.LoadSamples(runID)
	if err != nil {
		t.Fatalf("load samples failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[1].FPS != 60 || samples[1].Skipped != 2 || samples[1].Sent != 66 {
		t.Errorf("unexpected sample %+v", samples[1])
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	if _, err := st.Save(testRun("late", time.Unix(200, 0))); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := st.Save(testRun("early", time.Unix(100, 0))); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Scene != "early" {
		t.Errorf("expected oldest run first, got %s", runs[0].Scene)
	}
}

func TestListMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "absent"))
	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(testRun("drop", time.Unix(100, 0)))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runDir := filepath.Join(tmpDir, runID)
	for _, name := range []string{"metadata.json", "samples.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}
}

func TestLoadSamplesSkipsMalformedRows(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)
	runDir := filepath.Join(tmpDir, "manual")
	if err := os.MkdirAll(runDir, 0755); err != nil {
		t.Fatal(err)
	}
	csv := "time,fps,delta,sent,skipped,objects\n0.5,30,0.03,10,1,4\nbad,row\n1.0,x,0,0,0,0\n"
	if err := os.WriteFile(filepath.Join(runDir, "samples.csv"), []byte(csv), 0644); err != nil {
		t.Fatal(err)
	}

	samples, err := st.LoadSamples("manual")
	if err != nil {
		t.Fatalf("load samples failed: %v", err)
	}
	if len(samples) != 1 || samples[0].FPS != 30 {
		t.Errorf("expected one valid sample, got %+v", samples)
	}
}
