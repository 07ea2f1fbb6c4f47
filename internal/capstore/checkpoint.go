package capstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/francoispqt/gojay"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/Observe-l/tdc-polar/polar"
)

// Floats are written as shortest round-trip decimal strings.
type float64s []float64

func (a float64s) MarshalJSONArray(enc *gojay.Encoder) {
	for _, v := range a {
		enc.String(strconv.FormatFloat(v, 'g', -1, 64))
	}
}

func (a float64s) IsNil() bool { return a == nil }

func (a *float64s) UnmarshalJSONArray(dec *gojay.Decoder) error {
	var s string
	if err := dec.String(&s); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*a = append(*a, v)
	return nil
}

type ints []int

func (a ints) MarshalJSONArray(enc *gojay.Encoder) {
	for _, v := range a {
		enc.Int(v)
	}
}

func (a ints) IsNil() bool { return a == nil }

func (a *ints) UnmarshalJSONArray(dec *gojay.Decoder) error {
	var v int
	if err := dec.Int(&v); err != nil {
		return err
	}
	*a = append(*a, v)
	return nil
}

type bools []bool

func (a bools) MarshalJSONArray(enc *gojay.Encoder) {
	for _, v := range a {
		enc.Bool(v)
	}
}

func (a bools) IsNil() bool { return a == nil }

func (a *bools) UnmarshalJSONArray(dec *gojay.Decoder) error {
	var v bool
	if err := dec.Bool(&v); err != nil {
		return err
	}
	*a = append(*a, v)
	return nil
}

// checkpointBody is the JSON document inside a checkpoint.
type checkpointBody struct {
	RunID      string
	Trials     int
	Sums       float64s
	Errors     ints
	PrevFrozen bools
	Driver     string // base64 of the marshaled driver
}

func (b *checkpointBody) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("run_id", b.RunID)
	enc.IntKey("trials", b.Trials)
	enc.ArrayKey("sums", b.Sums)
	enc.ArrayKey("error_counts", b.Errors)
	enc.ArrayKey("prev_frozen", b.PrevFrozen)
	enc.StringKey("driver", b.Driver)
}

func (b *checkpointBody) IsNil() bool { return b == nil }

func (b *checkpointBody) UnmarshalJSONObject(dec *gojay.Decoder, key string) error {
	switch key {
	case "run_id":
		return dec.String(&b.RunID)
	case "trials":
		return dec.Int(&b.Trials)
	case "sums":
		return dec.Array(&b.Sums)
	case "error_counts":
		return dec.Array(&b.Errors)
	case "prev_frozen":
		return dec.Array(&b.PrevFrozen)
	case "driver":
		return dec.String(&b.Driver)
	}
	return nil
}

func (b *checkpointBody) NKeys() int { return 6 }

// Codec encodes checkpoints. It is safe for concurrent use.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec returns a codec. Close releases its zstd state.
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}

// Encode serializes st tagged with runID.
func (c *Codec) Encode(st *polar.AnalyzerState, runID uuid.UUID) ([]byte, error) {
	body := &checkpointBody{
		RunID:      runID.String(),
		Trials:     st.Batch.Trials,
		Sums:       st.Batch.Sums,
		Errors:     st.Batch.ErrorCounts,
		PrevFrozen: st.PrevFrozen,
		Driver:     base64.StdEncoding.EncodeToString(st.Driver),
	}
	js, err := gojay.MarshalJSONObject(body)
	if err != nil {
		return nil, err
	}
	payload := c.enc.EncodeAll(js, nil)
	h := checkpointHeader{
		Magic:      checkpointMagic,
		Version:    checkpointVersion,
		Flags:      flagZstd,
		CodeLength: uint32(len(st.Batch.Sums)),
		BodyLen:    uint32(len(payload)),
	}
	out := make([]byte, headerLen, headerLen+len(payload))
	h.MarshalBinary(out)
	return append(out, payload...), nil
}

// Decode parses a checkpoint written by Encode.
func (c *Codec) Decode(b []byte) (*polar.AnalyzerState, uuid.UUID, error) {
	var h checkpointHeader
	if !h.UnmarshalBinary(b) {
		return nil, uuid.Nil, fmt.Errorf("%w: short header", ErrBadCheckpoint)
	}
	if h.Magic != checkpointMagic || h.Version != checkpointVersion {
		return nil, uuid.Nil, fmt.Errorf("%w: magic %#x version %d", ErrBadCheckpoint, h.Magic, h.Version)
	}
	payload := b[headerLen:]
	if uint32(len(payload)) != h.BodyLen {
		return nil, uuid.Nil, fmt.Errorf("%w: body is %d bytes, header says %d", ErrBadCheckpoint, len(payload), h.BodyLen)
	}
	js := payload
	if h.Flags&flagZstd != 0 {
		var err error
		if js, err = c.dec.DecodeAll(payload, nil); err != nil {
			return nil, uuid.Nil, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
		}
	}

	var body checkpointBody
	if err := gojay.UnmarshalJSONObject(js, &body); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	n := int(h.CodeLength)
	if len(body.Sums) != n || len(body.Errors) != n || len(body.PrevFrozen) != n {
		return nil, uuid.Nil, fmt.Errorf("%w: vectors do not match code length %d", ErrBadCheckpoint, n)
	}
	id, err := uuid.Parse(body.RunID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%w: run id: %v", ErrBadCheckpoint, err)
	}
	driver, err := base64.StdEncoding.DecodeString(body.Driver)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%w: driver: %v", ErrBadCheckpoint, err)
	}
	return &polar.AnalyzerState{
		Batch: &polar.TrialBatch{
			Trials:      body.Trials,
			Sums:        body.Sums,
			ErrorCounts: body.Errors,
		},
		PrevFrozen: body.PrevFrozen,
		Driver:     driver,
	}, id, nil
}

// CheckpointFile stores analyzer state in a single file.
type CheckpointFile struct {
	path   string
	codec  *Codec
	runID  uuid.UUID
	logger *slog.Logger
}

// NewCheckpointFile uses path for the checkpoint. A fresh run id is drawn;
// loading an existing checkpoint adopts its id instead.
func NewCheckpointFile(path string, logger *slog.Logger) (*CheckpointFile, error) {
	codec, err := NewCodec()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckpointFile{path: path, codec: codec, runID: uuid.New(), logger: logger}, nil
}

func (c *CheckpointFile) Path() string { return c.path }

// RunID identifies the run across resumes.
func (c *CheckpointFile) RunID() uuid.UUID { return c.runID }

func (c *CheckpointFile) Close() { c.codec.Close() }

// Load reads the checkpoint if one exists and adopts its run id.
func (c *CheckpointFile) Load(_ context.Context) (*polar.AnalyzerState, bool, error) {
	b, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	st, id, err := c.codec.Decode(b)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", c.path, err)
	}
	c.runID = id
	c.logger.Info("checkpoint loaded",
		slog.String("path", c.path),
		slog.String("run_id", id.String()),
		slog.Int("simulations", st.Batch.Trials))
	return st, true, nil
}

func (c *CheckpointFile) Save(_ context.Context, st *polar.AnalyzerState) error {
	b, err := c.codec.Encode(st, c.runID)
	if err != nil {
		return err
	}
	return writeAtomic(c.path, func(f *os.File) error {
		_, err := f.Write(b)
		return err
	})
}
