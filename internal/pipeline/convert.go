package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgallion1/docnarrate/internal/metrics"
	"github.com/dgallion1/docnarrate/internal/recovery"
	"github.com/dgallion1/docnarrate/internal/synth"
)

// Failure classifies an unsuccessful conversion.
type Failure int

const (
	FailureNone Failure = iota
	FailureRejected
	FailureTransport
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureRejected:
		return "rejected"
	case FailureTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Outcome is the result of one speech request.
type Outcome struct {
	Audio   []byte
	Failure Failure
	Err     error
}

func (o Outcome) OK() bool {
	return o.Failure == FailureNone
}

// Voice holds the per-request speech settings.
type Voice struct {
	Model  string
	Voice  string
	Format string
	Speed  float64
}

// ChunkConverter sends chunks to the speech service. When a whole chunk
// fails it retries the two word halves once each. Transport faults are
// counted for the lifetime of the converter; once the count exceeds the
// threshold every further fault triggers recovery.
//
// Not safe for concurrent use.
type ChunkConverter struct {
	speech    synth.Converter
	recoverer recovery.Recoverer
	voice     Voice
	threshold int
	metrics   *metrics.Metrics
	log       *slog.Logger

	// Shared by copies made with WithVoice. Read concurrently by stats.
	counts *counts
}

type counts struct {
	transportFaults atomic.Int64
	failedSplits    atomic.Int64
	recoveries      atomic.Int64
}

func NewChunkConverter(speech synth.Converter, rec recovery.Recoverer, voice Voice, threshold int, m *metrics.Metrics, log *slog.Logger) *ChunkConverter {
	if rec == nil {
		rec = recovery.Noop{}
	}
	if threshold <= 0 {
		threshold = 1
	}
	return &ChunkConverter{
		speech:    speech,
		recoverer: rec,
		voice:     voice,
		threshold: threshold,
		metrics:   m,
		log:       log,
		counts:    &counts{},
	}
}

// WithVoice returns a converter using other speech settings. Fault counts
// stay shared with c.
func (c *ChunkConverter) WithVoice(v Voice) *ChunkConverter {
	cp := *c
	cp.voice = v
	return &cp
}

// Voice returns the speech settings in use.
func (c *ChunkConverter) Voice() Voice {
	return c.voice
}

// Convert submits text once and classifies the result. A transport fault
// that pushes the fault count over the threshold runs recovery before
// returning.
func (c *ChunkConverter) Convert(ctx context.Context, text string) Outcome {
	start := time.Now()
	audio, err := c.speech.Convert(ctx, synth.Request{
		Model:  c.voice.Model,
		Text:   text,
		Voice:  c.voice.Voice,
		Format: c.voice.Format,
		Speed:  c.voice.Speed,
	})
	if err == nil {
		c.metrics.ObserveConversion(time.Since(start))
		return Outcome{Audio: audio}
	}

	if ctx.Err() != nil {
		return Outcome{Failure: FailureTransport, Err: ctx.Err()}
	}
	if synth.IsRejected(err) {
		c.metrics.Rejection()
		c.log.Warn("speech rejected", "error", err, "bytes", len(text))
		return Outcome{Failure: FailureRejected, Err: err}
	}

	faults := c.counts.transportFaults.Add(1)
	c.metrics.TransportFault()
	c.log.Error("speech transport fault", "error", err, "faults", faults, "bytes", len(text))
	if faults > int64(c.threshold) {
		c.Recover(ctx)
	}
	return Outcome{Failure: FailureTransport, Err: err}
}

// Recover runs the recovery capability and blocks until it returns.
func (c *ChunkConverter) Recover(ctx context.Context) {
	c.counts.recoveries.Add(1)
	c.metrics.Recovery()
	c.log.Warn("recovering speech service", "faults", c.counts.transportFaults.Load())
	if err := c.recoverer.Recover(ctx); err != nil {
		c.log.Error("recovery failed", "error", err)
	}
}

// ChunkResult reports what happened to one chunk.
type ChunkResult struct {
	Fragments    int
	Bisected     bool
	FailedHalves int
}

// ConvertChunk converts text and hands each piece of audio to write in
// reading order. If the whole chunk fails, its words are split at the
// midpoint and each half is tried once. A failing half is counted and
// dropped. An error from write stops the chunk and is returned.
func (c *ChunkConverter) ConvertChunk(ctx context.Context, text string, write func([]byte) error) (ChunkResult, error) {
	var res ChunkResult

	out := c.Convert(ctx, text)
	if out.OK() {
		res.Fragments++
		return res, write(out.Audio)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	first, second, ok := Bisect(text)
	if !ok {
		c.failedSplit(&res, "whole", out)
		return res, nil
	}
	res.Bisected = true
	c.log.Info("bisecting chunk", "failure", out.Failure.String())

	for i, half := range []string{first, second} {
		out := c.Convert(ctx, half)
		if out.OK() {
			res.Fragments++
			if err := write(out.Audio); err != nil {
				return res, err
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		label := "first"
		if i == 1 {
			label = "second"
		}
		c.failedSplit(&res, label, out)
	}
	return res, nil
}

func (c *ChunkConverter) failedSplit(res *ChunkResult, part string, out Outcome) {
	res.FailedHalves++
	n := c.counts.failedSplits.Add(1)
	c.metrics.FailedSplit()
	c.log.Error("failed split", "part", part, "failure", out.Failure.String(), "error", out.Err, "failed_splits", n)
}

// Bisect splits text into two word-disjoint halves at the word midpoint.
// Each half keeps a trailing space like a chunk does. It fails for fewer
// than two words.
func Bisect(text string) (string, string, bool) {
	words := strings.Fields(text)
	if len(words) < 2 {
		return "", "", false
	}
	mid := len(words) / 2
	return strings.Join(words[:mid], " ") + " ", strings.Join(words[mid:], " ") + " ", true
}

// TransportFaults returns the run-wide transport fault count.
func (c *ChunkConverter) TransportFaults() int { return int(c.counts.transportFaults.Load()) }

// FailedSplits returns how many chunk halves were dropped.
func (c *ChunkConverter) FailedSplits() int { return int(c.counts.failedSplits.Load()) }

// Recoveries returns how many times recovery ran.
func (c *ChunkConverter) Recoveries() int { return int(c.counts.recoveries.Load()) }

// ErrNoInput means a run found no documents.
var ErrNoInput = errors.New("no input documents found")
