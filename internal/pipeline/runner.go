package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/docnarrate/internal/assemble"
	"github.com/dgallion1/docnarrate/internal/chunker"
	"github.com/dgallion1/docnarrate/internal/config"
	"github.com/dgallion1/docnarrate/internal/document"
	"github.com/dgallion1/docnarrate/internal/metrics"
	"github.com/dgallion1/docnarrate/internal/parser"
)

// Resume positions a document run part way through.
type Resume struct {
	NextChunkIndex int           // first fragment index
	Continue       chunker.Coord // where chunking starts
	StartFromChunk int           // chunks with a lower index are skipped
}

// Options configures a Runner.
type Options struct {
	Budget       int
	OutputFolder string
	Format       string
	Parse        parser.Options
	// Resume applies to the first document of a Run only.
	Resume Resume
}

// OptionsFromConfig maps the run configuration onto runner options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Budget:       cfg.MaxCharacters,
		OutputFolder: cfg.OutputFolderName,
		Format:       cfg.FileFormat,
		Parse:        parser.Options{FallbackPdftotext: cfg.PDFFallbackPdftotext},
		Resume: Resume{
			NextChunkIndex: cfg.NextChunkIndex,
			Continue:       chunker.Coord{Line: cfg.ContinueLine, Word: cfg.ContinueWord},
			StartFromChunk: cfg.StartFromChunk,
		},
	}
}

// VoiceFromConfig extracts the speech settings.
func VoiceFromConfig(cfg config.Config) Voice {
	return Voice{Model: cfg.Model, Voice: cfg.Voice, Format: cfg.FileFormat, Speed: cfg.Speed}
}

// DocResult describes one narrated document.
type DocResult struct {
	Name            string
	Dir             string
	Chunks          int
	Fragments       int
	Skipped         int
	FailedSplits    int
	TransportFaults int
	Recoveries      int
	Merged          string // merged file path, empty if none
	Audio           string // Merged, or the only fragment of a one-chunk document
	Last            chunker.Coord
	Duration        time.Duration
}

// Summary totals a Run.
type Summary struct {
	Documents       int
	Chunks          int
	Fragments       int
	Skipped         int
	FailedSplits    int
	TransportFaults int
	Recoveries      int
	Merged          int
	Duration        time.Duration
}

func (s *Summary) add(r DocResult) {
	s.Documents++
	s.Chunks += r.Chunks
	s.Fragments += r.Fragments
	s.Skipped += r.Skipped
	s.FailedSplits += r.FailedSplits
	s.TransportFaults += r.TransportFaults
	s.Recoveries += r.Recoveries
	if r.Merged != "" {
		s.Merged++
	}
}

// Runner narrates documents one at a time, chunk by chunk.
type Runner struct {
	opts    Options
	conv    *ChunkConverter
	metrics *metrics.Metrics
	log     *slog.Logger
	load    func(string) (*document.Document, error)
}

func NewRunner(opts Options, conv *ChunkConverter, m *metrics.Metrics, log *slog.Logger) *Runner {
	return &Runner{
		opts:    opts,
		conv:    conv,
		metrics: m,
		log:     log,
		load:    func(path string) (*document.Document, error) {
			return parser.Load(path, opts.Parse)
		},
	}
}

// Run narrates every document at paths in order. A document that fails to
// load or convert is logged and the run moves on; only cancellation stops
// it early.
func (r *Runner) Run(ctx context.Context, paths []string) (Summary, error) {
	var sum Summary
	if len(paths) == 0 {
		return sum, ErrNoInput
	}
	start := time.Now()
	used := make(map[string]bool)

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		doc, err := r.load(path)
		if err != nil {
			r.log.Error("load failed", "path", path, "error", err)
			continue
		}

		var resume Resume
		if i == 0 {
			resume = r.opts.Resume
		}
		folder := uniqueFolder(used, SanitizeName(doc.Name))
		if folder != SanitizeName(doc.Name) {
			r.log.Warn("output folder already used in this run", "doc", doc.Name, "path", path, "folder", folder)
		}
		res, err := r.narrate(ctx, doc, folder, resume, nil)
		sum.add(res)
		if err != nil {
			if ctx.Err() != nil {
				return sum, err
			}
			r.log.Error("document failed", "doc", doc.Name, "error", err)
		}
	}

	sum.Duration = time.Since(start)
	r.log.Info("run complete",
		"documents", sum.Documents,
		"chunks", sum.Chunks,
		"fragments", sum.Fragments,
		"skipped", sum.Skipped,
		"failed_splits", sum.FailedSplits,
		"transport_faults", sum.TransportFaults,
		"recoveries", sum.Recoveries,
		"merged", sum.Merged,
		"seconds", int(sum.Duration.Seconds()),
	)
	return sum, nil
}

// uniqueFolder claims name in used, adding a numeric suffix when a
// document earlier in the run already took it. Names compare without case.
func uniqueFolder(used map[string]bool, name string) string {
	candidate := name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		candidate = name + " " + strconv.Itoa(n)
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

// Progress is reported after every chunk of a document.
type Progress struct {
	Chunks    int
	Expected  int
	Fragments int
	Resume    chunker.Coord
}

// Narrate converts one document and merges its fragments. progress may be
// nil. The returned error is a cancellation or a fragment write fault;
// speech failures only show up in the counts.
func (r *Runner) Narrate(ctx context.Context, doc *document.Document, resume Resume, progress func(Progress)) (DocResult, error) {
	return r.narrate(ctx, doc, SanitizeName(doc.Name), resume, progress)
}

// narrate writes into <OutputFolder>/<folder>, naming fragments after folder.
func (r *Runner) narrate(ctx context.Context, doc *document.Document, folder string, resume Resume, progress func(Progress)) (res DocResult, err error) {
	start := time.Now()
	log := r.log.With("doc", doc.Name)
	r.metrics.Document()

	expected := chunker.EstimateCount(doc.Size, r.opts.Budget)
	st := newDocState(r.opts.OutputFolder, folder, r.opts.Format, resume.NextChunkIndex, expected)
	res = DocResult{Name: doc.Name, Dir: st.dir, Last: resume.Continue}

	faults, splits, recoveries := r.conv.TransportFaults(), r.conv.FailedSplits(), r.conv.Recoveries()
	defer func() {
		res.TransportFaults = r.conv.TransportFaults() - faults
		res.Recoveries = r.conv.Recoveries() - recoveries
	}()

	log.Info("narrating document",
		"size", doc.Size,
		"lines", len(doc.Lines),
		"expected_chunks", expected,
		"start", resume.Continue.String(),
		"first_index", resume.NextChunkIndex,
	)

	write := func(audio []byte) error {
		path, err := st.writeFragment(audio)
		if err != nil {
			return err
		}
		r.metrics.Fragment()
		log.Info("fragment written", "path", path, "bytes", len(audio))
		return nil
	}

	for ch := range chunker.New(r.opts.Budget).Chunks(doc, resume.Continue) {
		res.Chunks++
		r.metrics.Chunk()

		if st.index.Peek() < resume.StartFromChunk {
			st.index.Next()
			res.Skipped++
			r.metrics.Skip()
			res.Last = ch.End
			log.Debug("chunk skipped", "seq", ch.Seq, "resume", ch.End.String())
			continue
		}

		cr, cerr := r.conv.ConvertChunk(ctx, ch.Text, write)
		res.Fragments += cr.Fragments
		res.FailedSplits = r.conv.FailedSplits() - splits
		if cerr != nil {
			res.Duration = time.Since(start)
			return res, fmt.Errorf("chunk %d at %s: %w", ch.Seq, ch.Start, cerr)
		}
		res.Last = ch.End
		log.Info("chunk converted",
			"seq", ch.Seq,
			"fragments", cr.Fragments,
			"bisected", cr.Bisected,
			"resume", ch.End.String(),
		)
		if progress != nil {
			progress(Progress{Chunks: res.Chunks, Expected: expected, Fragments: res.Fragments, Resume: ch.End})
		}
	}

	if st.created {
		res.Merged = r.merge(log, st)
		res.Audio = res.Merged
		if res.Audio == "" && len(st.written) == 1 {
			res.Audio = st.written[0]
		}
	} else {
		log.Warn("no audio produced")
	}

	res.Duration = time.Since(start)
	log.Info("document complete",
		"chunks", res.Chunks,
		"fragments", res.Fragments,
		"skipped", res.Skipped,
		"failed_splits", res.FailedSplits,
		"last", res.Last.String(),
		"seconds", int(res.Duration.Seconds()),
	)
	return res, nil
}

// merge joins the document's fragments. Faults are logged, never returned.
func (r *Runner) merge(log *slog.Logger, st *docState) string {
	if width := st.outgrown(); width > 0 {
		n, err := assemble.Widen(st.dir, st.name, st.format, width)
		if err != nil {
			log.Error("relabel failed, merge skipped", "error", err)
			r.metrics.MergeFailure()
			return ""
		}
		log.Warn("chunk count exceeded estimate, fragments relabelled", "width", width, "renamed", n)
	}

	if !assemble.ConcatSafe(st.format) {
		log.Warn("format cannot be merged by concatenation, fragments kept", "format", st.format)
		return ""
	}

	mr, err := assemble.Merge(st.dir, st.format)
	if err != nil {
		log.Error("merge failed", "error", err)
		r.metrics.MergeFailure()
		return ""
	}
	if !mr.Merged() {
		log.Info("single fragment, nothing to merge", "fragments", len(mr.Fragments))
		return ""
	}
	r.metrics.Merge()
	log.Info("fragments merged", "path", mr.Path, "fragments", len(mr.Fragments), "bytes", mr.Bytes, "stale_removed", mr.StaleRemoved)
	return mr.Path
}
