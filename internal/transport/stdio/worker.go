// Package stdio serves the embedding protocol over line-delimited JSON,
// one request per input line and one response per output line.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/transport/wire"
)

// MaxLineBytes bounds a single input line.
const MaxLineBytes = 4 << 20

// Worker answers embedding requests read from a stream.
type Worker struct {
	embed   domain.Embedder
	logger  *zap.Logger
	maxLine int
}

// NewWorker creates a stdio worker.
func NewWorker(embed domain.Embedder, logger *zap.Logger) *Worker {
	return &Worker{embed: embed, logger: logger, maxLine: MaxLineBytes}
}

// WithMaxLineBytes returns a copy that rejects input lines longer than n bytes.
func (w *Worker) WithMaxLineBytes(n int) *Worker {
	cp := *w
	if n > 0 {
		cp.maxLine = n
	}
	return &cp
}

// Run processes in until EOF or ctx is done. Bad or oversized lines produce an
// error line and do not stop the stream; only read and write failures end it early.
func (w *Worker) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	br := bufio.NewReaderSize(in, 64*1024)
	bw := bufio.NewWriter(out)
	enc := json.NewEncoder(bw)

	var buf []byte
	lines := 0
	for {
		raw, tooLong, err := readLine(br, w.maxLine, buf[:0])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read requests: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck // cancellation passes through
		}
		buf = raw

		var resp wire.EmbedResponse
		if tooLong {
			w.logger.Warn("Worker input line too long", zap.Int("max_bytes", w.maxLine))
			resp = wire.EmbedResponse{Error: "line too long", Code: wire.CodeBadRequest}
		} else {
			line := bytes.TrimSpace(raw)
			if len(line) == 0 {
				continue
			}
			resp = w.handle(ctx, line)
		}
		lines++

		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("flush response: %w", err)
		}
	}

	w.logger.Debug("Worker input closed", zap.Int("lines", lines))
	return nil
}

// readLine appends the next line of br to buf without its newline.
// A line over limit bytes is consumed to its end and reported as tooLong.
// io.EOF is returned only when no bytes remain.
func readLine(br *bufio.Reader, limit int, buf []byte) (line []byte, tooLong bool, err error) {
	read := false
	for {
		chunk, err := br.ReadSlice('\n')
		read = read || len(chunk) > 0
		chunk = bytes.TrimSuffix(chunk, []byte{'\n'})
		if !tooLong {
			if len(buf)+len(chunk) > limit {
				tooLong = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		switch {
		case err == nil:
			return buf, tooLong, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && read:
			return buf, tooLong, nil
		default:
			return nil, false, err //nolint:wrapcheck // wrapped by Run
		}
	}
}

func (w *Worker) handle(ctx context.Context, line []byte) wire.EmbedResponse {
	var req wire.EmbedRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return wire.EmbedResponse{Error: "Invalid JSON: " + err.Error(), Code: wire.CodeBadRequest}
	}
	if err := req.Text.Validate(); err != nil {
		return wire.EmbedResponse{Error: err.Error(), Code: wire.CodeBadRequest}
	}

	if !req.Text.Batch {
		res, err := w.embed.Embed(ctx, req.Text.Values[0])
		if err != nil {
			return w.failure(err)
		}
		return wire.EmbedResponse{Embedding: res.Embedding}
	}

	res, err := domain.BatchEmbed(ctx, w.embed, req.Text.Values)
	if err != nil {
		return w.failure(err)
	}
	return wire.EmbedResponse{Embeddings: res.Embeddings}
}

func (w *Worker) failure(err error) wire.EmbedResponse {
	w.logger.Warn("Worker embedding failed", zap.Error(err))
	if errors.Is(err, domain.ErrEmbedding) {
		return wire.EmbedResponse{Error: err.Error(), Code: wire.CodeEmbeddingProvider}
	}
	return wire.EmbedResponse{Error: "internal error", Code: wire.CodeInternal}
}
