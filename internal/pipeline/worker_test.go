package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dgallion1/docnarrate/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Load()
	cfg.OutputFolderName = t.TempDir()
	cfg.MaxQueueSize = 4
	return cfg
}

func newJob(id, filename, body string) *Job {
	job := &Job{
		ID:       id,
		Filename: filename,
		Status:   StatusQueued,
		Settings: Settings{Voice: "am_adam", Speed: 1.1, Format: "mp3", MaxCharacters: 4},
	}
	job.SetFileData([]byte(body))
	return job
}

func TestWorker_ProcessCompletes(t *testing.T) {
	speech := &fakeSpeech{}
	cfg := testConfig(t)
	w := NewWorker(newTestConverter(speech, nil), nil, discardLogger(), cfg)

	job := newJob("job-1", "notes.txt", "aa bb\ncc")
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Progress.Fragments != 3 || !snap.Merged {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	got, err := os.ReadFile(job.AudioPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "<aa><bb><cc>" {
		t.Errorf("expected merged audio, got %q", got)
	}
	if speech.calls[0].Voice != "am_adam" || speech.calls[0].Speed != 1.1 {
		t.Errorf("expected job settings in request, got %+v", speech.calls[0])
	}
	if job.FileData() != nil {
		t.Error("expected upload bytes released after parsing")
	}
}

func TestWorker_UnsupportedFormat(t *testing.T) {
	w := NewWorker(newTestConverter(&fakeSpeech{}, nil), nil, discardLogger(), testConfig(t))
	job := newJob("job-2", "image.png", "PNG")
	w.Process(context.Background(), job)
	if snap := job.Snapshot(); snap.Status != StatusFailed || snap.Phase != "parsing" {
		t.Errorf("expected parsing failure, got %s/%s", snap.Status, snap.Phase)
	}
}

func TestWorker_PartialWhenSplitsFail(t *testing.T) {
	speech := &fakeSpeech{fail: func(text string, _ int) error {
		if text == "bb " {
			return rejected
		}
		return nil
	}}
	w := NewWorker(newTestConverter(speech, nil), nil, discardLogger(), testConfig(t))
	job := newJob("job-3", "notes.txt", "aa bb cc")
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusPartial {
		t.Errorf("expected partial, got %s", snap.Status)
	}
	if snap.Progress.FailedSplits != 1 {
		t.Errorf("expected 1 failed split, got %d", snap.Progress.FailedSplits)
	}
}

func TestWorker_NothingConverted(t *testing.T) {
	speech := &fakeSpeech{fail: func(string, int) error { return rejected }}
	w := NewWorker(newTestConverter(speech, nil), nil, discardLogger(), testConfig(t))
	job := newJob("job-4", "notes.txt", "aa")
	w.Process(context.Background(), job)
	if snap := job.Snapshot(); snap.Status != StatusFailed {
		t.Errorf("expected failed, got %s", snap.Status)
	}
}

func TestOrchestrator_SubmitAndProcess(t *testing.T) {
	cfg := testConfig(t)
	o := NewOrchestrator(cfg, newTestConverter(&fakeSpeech{}, nil), nil, discardLogger())
	o.Start(context.Background())
	defer o.Stop()

	job := newJob("job-5", "notes.txt", "aa bb")
	if err := o.Submit(job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.GetJob("job-5") != job {
		t.Fatal("expected job to be registered")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s := job.Snapshot().Status; s == StatusCompleted || s == StatusFailed {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if s := job.Snapshot().Status; s != StatusCompleted {
		t.Errorf("expected completed, got %s", s)
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxQueueSize = 1
	// Not started, so nothing drains the queue.
	o := NewOrchestrator(cfg, newTestConverter(&fakeSpeech{}, nil), nil, discardLogger())

	if err := o.Submit(newJob("a", "a.txt", "aa")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	full := newJob("b", "b.txt", "bb")
	if err := o.Submit(full); err == nil {
		t.Error("expected queue full error")
	}
	if full.Snapshot().Status != StatusFailed {
		t.Errorf("expected rejected job marked failed, got %s", full.Snapshot().Status)
	}
	if o.QueueDepth() != 1 {
		t.Errorf("expected depth 1, got %d", o.QueueDepth())
	}
}

func TestOrchestrator_SubmitAfterStop(t *testing.T) {
	o := NewOrchestrator(testConfig(t), newTestConverter(&fakeSpeech{}, nil), nil, discardLogger())
	o.Start(context.Background())
	o.Stop()

	if err := o.Submit(newJob("late", "late.txt", "aa")); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	if o.GetJob("late") != nil {
		t.Error("expected job refused after stop not to be stored")
	}
	// A second Stop must not close the queue again.
	o.Stop()
}
