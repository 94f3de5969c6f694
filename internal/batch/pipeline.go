package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// Redactor is satisfied by *redact.Engine
type Redactor interface {
	Redact(text string) string
}

// Pipeline redacts log archives offline
type Pipeline struct {
	redactor Redactor
	config   Config
	logger   *zap.Logger
}

// NewPipeline creates a new batch pipeline. Zero config values take the
// defaults.
func NewPipeline(r Redactor, config Config, logger *zap.Logger) *Pipeline {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Field == "" {
		config.Field = defaults.Field
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{redactor: r, config: config, logger: logger}
}

// ProcessFile redacts inPath into outPath
func (p *Pipeline) ProcessFile(ctx context.Context, inPath, outPath string) (*Result, error) {
	format := p.config.Format
	if format == "" {
		format = DetectFormat(inPath)
	}

	if same, err := samePath(inPath, outPath); err != nil {
		return nil, err
	} else if same {
		return nil, fmt.Errorf("output %s would overwrite the input", outPath)
	}

	in, err := os.Open(inPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}

	p.logger.Info("Starting batch redaction",
		zap.String("input", inPath),
		zap.String("output", outPath),
		zap.String("format", string(format)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.Workers))

	var result *Result
	if format == FormatParquet {
		result, err = p.processParquet(ctx, in, out)
	} else {
		result, err = p.ProcessStream(ctx, in, out, format)
	}
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close output: %w", closeErr)
	}
	if err != nil {
		return result, err
	}

	p.logger.Info("Batch redaction completed",
		zap.Int64("records", result.Records),
		zap.Int64("changed", result.Changed),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// ProcessStream redacts a line-oriented stream (text or jsonl). Lines that
// need no change are written byte for byte.
func (p *Pipeline) ProcessStream(ctx context.Context, r io.Reader, w io.Writer, format Format) (*Result, error) {
	if format == FormatParquet {
		return nil, errors.New("parquet input requires ProcessFile")
	}

	start := time.Now()
	result := &Result{Format: format}
	reader := bufio.NewReaderSize(r, 64*1024)
	writer := bufio.NewWriterSize(w, 64*1024)

	for {
		batch, err := p.readLines(reader, format, result)
		if err != nil {
			return result, err
		}
		if len(batch) == 0 {
			break
		}

		texts := make([]string, 0, len(batch))
		for _, rec := range batch {
			if !rec.skip {
				texts = append(texts, rec.text)
			}
		}
		redacted, err := p.redactAll(ctx, texts)
		if err != nil {
			return result, err
		}

		next := 0
		for _, rec := range batch {
			line := rec.raw
			if !rec.skip {
				out := redacted[next]
				next++
				if out != rec.text {
					result.Changed++
					line, err = p.rebuild(rec, out)
					if err != nil {
						return result, err
					}
				}
			}
			if _, err := writer.WriteString(line); err != nil {
				return result, fmt.Errorf("failed to write output: %w", err)
			}
			if _, err := writer.WriteString(rec.eol); err != nil {
				return result, fmt.Errorf("failed to write output: %w", err)
			}
		}
	}

	if err := writer.Flush(); err != nil {
		return result, fmt.Errorf("failed to write output: %w", err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

// lineRecord is one input line and the text to redact from it
type lineRecord struct {
	raw    string // line without terminator
	eol    string
	text   string
	skip   bool
	// jsonl only: raw[start:end] is the message value. Without a span the
	// whole line is redacted as text.
	span       bool
	start, end int
}

// readLines reads up to BatchSize lines
func (p *Pipeline) readLines(reader *bufio.Reader, format Format, result *Result) ([]lineRecord, error) {
	var batch []lineRecord

	for len(batch) < p.config.BatchSize {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		if line == "" && err == io.EOF {
			break
		}

		rec := lineRecord{raw: line}
		if strings.HasSuffix(rec.raw, "\n") {
			rec.raw = rec.raw[:len(rec.raw)-1]
			rec.eol = "\n"
			if strings.HasSuffix(rec.raw, "\r") {
				rec.raw = rec.raw[:len(rec.raw)-1]
				rec.eol = "\r\n"
			}
		}

		if format == FormatJSONL {
			p.parseJSONLine(&rec, result)
		} else {
			rec.text = rec.raw
			result.Records++
		}
		batch = append(batch, rec)

		if err == io.EOF {
			break
		}
	}
	return batch, nil
}

// parseJSONLine picks the message field out of a jsonl line. Lines that are
// not JSON objects are counted as failed and redacted as plain text.
func (p *Pipeline) parseJSONLine(rec *lineRecord, result *Result) {
	if strings.TrimSpace(rec.raw) == "" {
		rec.skip = true
		return
	}
	result.Records++

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(rec.raw), &fields); err != nil || fields == nil {
		result.Failed++
		rec.text = rec.raw
		return
	}

	raw, ok := fields[p.config.Field]
	var msg string
	if !ok || json.Unmarshal(raw, &msg) != nil {
		rec.skip = true
		return
	}
	start, end, found := valueSpan(rec.raw, p.config.Field)
	if !found {
		rec.skip = true
		return
	}
	rec.span, rec.start, rec.end = true, start, end
	rec.text = msg
}

// valueSpan locates the value of the top-level key field in an object.
// Duplicate keys resolve to the last one, as json.Unmarshal does.
func valueSpan(line, field string) (start, end int, found bool) {
	dec := json.NewDecoder(strings.NewReader(line))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return 0, 0, false
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return 0, 0, false
		}
		key, _ := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return 0, 0, false
		}
		if key == field {
			end = int(dec.InputOffset())
			start = end - len(value)
			found = true
		}
	}
	return start, end, found
}

// rebuild renders a changed record. For jsonl only the message value is
// replaced; key order, spacing and every other byte of the line are kept.
func (p *Pipeline) rebuild(rec lineRecord, redacted string) (string, error) {
	if !rec.span {
		return redacted, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(redacted); err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	value := bytes.TrimRight(buf.Bytes(), "\n")

	var b strings.Builder
	b.Grow(len(rec.raw) - (rec.end - rec.start) + len(value))
	b.WriteString(rec.raw[:rec.start])
	b.Write(value)
	b.WriteString(rec.raw[rec.end:])
	return b.String(), nil
}

// processParquet redacts the message column of a parquet archive
func (p *Pipeline) processParquet(ctx context.Context, in *os.File, out io.Writer) (*Result, error) {
	start := time.Now()
	result := &Result{Format: FormatParquet}

	reader := parquet.NewReader(in)
	defer reader.Close()

	writer := parquet.NewWriter(out, parquet.SchemaOf(LogRecord{}))

	for {
		batch := make([]LogRecord, 0, p.config.BatchSize)
		for len(batch) < p.config.BatchSize {
			var record LogRecord
			err := reader.Read(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				return result, fmt.Errorf("failed to read parquet record: %w", err)
			}
			batch = append(batch, record)
		}
		if len(batch) == 0 {
			break
		}

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Message
		}
		redacted, err := p.redactAll(ctx, texts)
		if err != nil {
			return result, err
		}

		for i := range batch {
			result.Records++
			if redacted[i] != batch[i].Message {
				result.Changed++
				batch[i].Message = redacted[i]
			}
			if err := writer.Write(batch[i]); err != nil {
				return result, fmt.Errorf("failed to write parquet record: %w", err)
			}
		}
	}

	if err := writer.Close(); err != nil {
		return result, fmt.Errorf("failed to finish parquet output: %w", err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

// redactAll redacts texts with the worker pool. Output order equals input
// order.
func (p *Pipeline) redactAll(ctx context.Context, texts []string) ([]string, error) {
	out := make([]string, len(texts))
	if len(texts) == 0 {
		return out, ctx.Err()
	}

	workers := p.config.Workers
	if workers > len(texts) {
		workers = len(texts)
	}
	chunk := (len(texts) + workers - 1) / workers

	var wg sync.WaitGroup
	for lo := 0; lo < len(texts); lo += chunk {
		hi := lo + chunk
		if hi > len(texts) {
			hi = len(texts)
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				if ctx.Err() != nil {
					return
				}
				out[i] = p.redactor.Redact(texts[i])
			}
		}(lo, hi)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// samePath reports whether a and b name the same file
func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	if absA == absB {
		return true, nil
	}
	infoA, errA := os.Stat(absA)
	infoB, errB := os.Stat(absB)
	if errA != nil || errB != nil {
		return false, nil
	}
	return os.SameFile(infoA, infoB), nil
}
