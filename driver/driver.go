// Package driver serves the promptline line protocol: one request record per
// input line, one response record per output line.
package driver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/promptline/pkg/engine"
	"github.com/papercomputeco/promptline/pkg/generate"
	"github.com/papercomputeco/promptline/pkg/llm"
	"github.com/papercomputeco/promptline/pkg/record"
	"github.com/papercomputeco/promptline/pkg/transcript"
)

// Sentinel lines end a session without a response. They match byte for byte.
const (
	SentinelExit = "exit();"
	SentinelQuit = "quit();"
)

// Baseline is the process-wide state shared by every request. It is built
// once by New and never changes afterwards.
type Baseline struct {
	Defaults       llm.Options
	MemoryPerToken uint64
	ContextSize    int
	Threads        int
	VocabSize      int
}

// Info returns the announcement for b.
func (b Baseline) Info() llm.Info {
	return llm.Info{
		ContextSize:         b.ContextSize,
		Threads:             b.Threads,
		VocabSize:           b.VocabSize,
		MemoryPerTokenBytes: b.MemoryPerToken,
	}
}

// Driver reads requests, runs generations and writes responses. A Driver
// serves one session at a time.
type Driver struct {
	config     Config
	baseline   Baseline
	generator  *generate.Generator
	transcript transcript.Storer
	logger     *zap.Logger
}

// New measures the memory-per-token estimate with a single warm-up
// evaluation and returns a ready Driver. A warm-up failure is fatal.
// A nil logger discards all log output.
func New(config Config, model engine.Model, sampler engine.Sampler, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	vocab := model.Vocabulary()
	warmup := make([]engine.Token, 0, len(engine.WarmupTokens))
	for _, id := range engine.WarmupTokens {
		if int(id) < vocab.Size() && len(warmup) < model.ContextSize() {
			warmup = append(warmup, id)
		}
	}

	eval, err := model.Evaluate(config.Threads, 0, warmup)
	if err != nil {
		return nil, fmt.Errorf("could not measure memory per token: %w", err)
	}

	d := &Driver{
		config: config,
		baseline: Baseline{
			Defaults:       config.Defaults,
			MemoryPerToken: eval.MemoryPerToken,
			ContextSize:    model.ContextSize(),
			Threads:        config.Threads,
			VocabSize:      vocab.Size(),
		},
		generator: generate.New(model, sampler, config.Threads, logger.Named("generate")),
		logger:    logger,
	}

	if config.TranscriptPath != "" {
		d.transcript, err = transcript.NewSQLiteStorer(config.TranscriptPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create transcript storer: %w", err)
		}
		logger.Info("recording transcript", zap.String("path", config.TranscriptPath))
	}

	logger.Info("driver ready",
		zap.Int("n_ctx", d.baseline.ContextSize),
		zap.Int("n_threads", d.baseline.Threads),
		zap.Int("n_vocab", d.baseline.VocabSize),
		zap.Uint64("memory_per_token_bytes", d.baseline.MemoryPerToken),
	)

	return d, nil
}

// Baseline returns the process-wide state.
func (d *Driver) Baseline() Baseline {
	return d.baseline
}

// Transcript returns the transcript store, or nil when none is configured.
func (d *Driver) Transcript() transcript.Storer {
	return d.transcript
}

// Close releases the transcript store. The model is owned by the caller.
func (d *Driver) Close() error {
	if d.transcript == nil {
		return nil
	}
	return d.transcript.Close()
}

// session is the per-Run state.
type session struct {
	id       string
	logger   *zap.Logger
	last     *transcript.Entry
	served   int
	failed   int
	rejected int
}

// Run serves one session: it reads lines from in until EOF, a read error or
// a sentinel line and writes one response line to out per request.
// Cancelling ctx stops the session before the next line is read.
func (d *Driver) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	s := &session{id: uuid.NewString()}
	s.logger = d.logger.With(zap.String("session", s.id))
	s.logger.Debug("session started")

	r := bufio.NewReader(in)
	w := bufio.NewWriter(out)

	if d.config.Announce {
		if err := writeRecord(w, d.baseline.Info().Record()); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("session cancelled", zap.Error(err))
			return err
		}

		line, tooLong, err := readLine(r, d.config.MaxLineBytes)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("read failed, ending session", zap.Error(err))
			}
			d.endSession(s, "end of input")
			return nil
		}

		if line == SentinelExit || line == SentinelQuit {
			d.endSession(s, line)
			return nil
		}

		resp := d.serve(ctx, s, line, tooLong)
		if resp == nil {
			continue
		}
		if err := writeRecord(w, resp); err != nil {
			return err
		}
	}
}

func (d *Driver) endSession(s *session, reason string) {
	s.logger.Info("session ended",
		zap.String("reason", reason),
		zap.Int("served", s.served),
		zap.Int("failed", s.failed),
		zap.Int("rejected", s.rejected),
	)
}

// serve handles one request line and returns the response to write, or nil
// when the response is suppressed.
func (d *Driver) serve(ctx context.Context, s *session, line string, tooLong bool) *record.Record {
	turn := llm.Turn{}

	resp, err := d.handle(line, tooLong, &turn)
	if err != nil {
		resp = llm.ErrorRecord(err)
	}
	turn.Response = resp.Map()
	d.record(ctx, s, turn)

	switch {
	case err == nil:
		s.served++
		return resp
	case llm.IsInvalidArguments(err):
		s.rejected++
		s.logger.Debug("invalid request", zap.Error(err))
		if d.config.SuppressInvalidErrors {
			return nil
		}
		return resp
	default:
		s.failed++
		s.logger.Warn("request failed", zap.Error(err))
		return resp
	}
}

func (d *Driver) handle(line string, tooLong bool, turn *llm.Turn) (*record.Record, error) {
	if tooLong {
		return nil, &record.ParseError{Offset: d.config.MaxLineBytes, Reason: "line too long"}
	}

	rec, err := record.Decode(line)
	if err != nil {
		turn.Raw = line
		return nil, err
	}
	turn.Request = rec.Map()

	opts, err := llm.DecodeOptions(rec, d.baseline.Defaults)
	if err != nil {
		return nil, err
	}

	res, err := d.generator.Generate(opts)
	if err != nil {
		return nil, err
	}
	turn.Seed = res.Metrics.Seed

	return res.Response(d.baseline.MemoryPerToken).Record(), nil
}

// record appends turn to the transcript. Failures are logged and never
// affect the response.
func (d *Driver) record(ctx context.Context, s *session, turn llm.Turn) {
	if d.transcript == nil {
		return
	}

	entry := transcript.NewEntry(turn, s.last)
	if _, err := d.transcript.Put(ctx, entry); err != nil {
		s.logger.Error("failed to store transcript entry", zap.Error(err))
		return
	}
	s.last = entry
	s.logger.Debug("transcript entry stored", zap.String("hash", entry.Hash[:16]))
}

// readLine reads one line without its trailing newline. A line longer than
// limit is consumed in full and reported as tooLong. A final line without a
// newline is returned as is; io.EOF is only returned when nothing was read.
func readLine(r *bufio.Reader, limit int) (line string, tooLong bool, err error) {
	var buf bytes.Buffer
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if buf.Len()+len(bytes.TrimSuffix(chunk, []byte{'\n'})) > limit {
				tooLong = true
				buf.Reset()
			} else {
				buf.Write(chunk)
			}
		}

		switch {
		case err == nil:
			return string(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), tooLong, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && (buf.Len() > 0 || tooLong):
			return buf.String(), tooLong, nil
		default:
			return "", false, err
		}
	}
}

func writeRecord(w *bufio.Writer, rec *record.Record) error {
	if _, err := w.WriteString(record.Encode(rec)); err != nil {
		return fmt.Errorf("could not write response: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("could not write response: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("could not flush response: %w", err)
	}
	return nil
}
