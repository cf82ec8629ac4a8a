package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dgallion1/docnarrate/internal/config"
	"github.com/dgallion1/docnarrate/internal/metrics"
	"github.com/dgallion1/docnarrate/internal/parser"
)

// Worker narrates a single uploaded document.
type Worker struct {
	conv    *ChunkConverter
	metrics *metrics.Metrics
	log     *slog.Logger
	cfg     config.Config
}

func NewWorker(conv *ChunkConverter, m *metrics.Metrics, log *slog.Logger, cfg config.Config) *Worker {
	return &Worker{conv: conv, metrics: m, log: log, cfg: cfg}
}

// Process parses the upload, narrates it into a directory of its own and
// records the outcome on the job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	p, err := parser.ForFile(job.Filename, parser.Options{FallbackPdftotext: w.cfg.PDFFallbackPdftotext})
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "parsing")
		return
	}

	doc, err := p.Parse(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	if job.Name != "" {
		doc.Name = job.Name
	}
	// The bytes are no longer needed once parsed.
	job.SetFileData(nil)

	// Phase 2: Narrate
	job.SetStatus(StatusNarrating, "narrating")
	s := job.Settings
	conv := w.conv.WithVoice(Voice{
		Model:  w.cfg.Model,
		Voice:  s.Voice,
		Format: s.Format,
		Speed:  s.Speed,
	})
	root := filepath.Join(w.cfg.OutputFolderName, "jobs", job.ID)
	job.SetOutputDir(root)
	runner := NewRunner(Options{
		Budget:       s.MaxCharacters,
		OutputFolder: root,
		Format:       s.Format,
	}, conv, w.metrics, log)

	res, err := runner.Narrate(ctx, doc, Resume{}, job.SetProgress)
	job.SetResult(res)
	if err != nil {
		log.Error("narration failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "narrating")
		return
	}

	switch {
	case res.Fragments == 0:
		job.AddError("no audio produced")
		job.SetStatus(StatusFailed, "done")
	case res.FailedSplits > 0:
		job.AddError(fmt.Sprintf("%d chunk halves could not be converted", res.FailedSplits))
		job.SetStatus(StatusPartial, "done")
	default:
		job.SetStatus(StatusCompleted, "done")
	}
	log.Info("job finished", "fragments", res.Fragments, "merged", res.Merged != "")
}
