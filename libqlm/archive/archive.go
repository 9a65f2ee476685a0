package archive

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/gogo/protobuf/proto"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

/***

Archive file format:

	Frame...

	Frame:    Codec (1 byte), RawLen (uint32 LE), DataLen (uint32 LE), Data
	Raw data: NumRuns, { SectorTag, Count, Keys }...  (proto varints and length-prefixed bytes)

Each WriteStates batch becomes exactly one frame. Runs group consecutive states of the same sector;
Keys holds Count big-endian state keys back to back.

***/

// Codec selects how frames are compressed.
type Codec uint8

const (
	CodecNone Codec = 0
	CodecLZ4  Codec = 1
	CodecZstd Codec = 2
)

const frameHeaderSize = 9

// maxFrameSize bounds a frame's declared sizes so a corrupt header can't trigger a huge allocation.
const maxFrameSize = 1 << 30

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Writer is a qlm.StateSink that appends each batch to a compressed stream.
type Writer struct {
	w      io.Writer
	closer io.Closer
	codec  Codec
	raw    []byte
	frame  []byte
	count  int64
}

// NewWriter returns a Writer appending frames to w.
func NewWriter(w io.Writer, codec Codec) *Writer {
	return &Writer{
		w:     w,
		codec: codec,
	}
}

// Create creates (or truncates) the archive file at pathname.
func Create(pathname string, codec Codec) (*Writer, error) {
	file, err := os.Create(pathname)
	if err != nil {
		return nil, err
	}
	wr := NewWriter(file, codec)
	wr.closer = file
	return wr, nil
}

// Count returns the number of states written so far.
func (wr *Writer) Count() int64 {
	return wr.count
}

// WriteStates encodes the batch as a single frame and writes it with one call to the underlying writer.
func (wr *Writer) WriteStates(batch []qlm.SectorState) error {
	if len(batch) == 0 {
		return nil
	}
	wr.raw = encodeBatch(wr.raw[:0], batch)

	frame, err := appendFrame(wr.frame[:0], wr.raw, wr.codec)
	if err != nil {
		return err
	}
	wr.frame = frame

	if _, err = wr.w.Write(frame); err != nil {
		return errors.Wrapf(err, "writing %d states", len(batch))
	}
	wr.count += int64(len(batch))
	return nil
}

// Close closes the underlying file if the Writer was made by Create.
func (wr *Writer) Close() error {
	if wr.closer != nil {
		err := wr.closer.Close()
		wr.closer = nil
		return err
	}
	return nil
}

func encodeBatch(dst []byte, batch []qlm.SectorState) []byte {
	buf := proto.NewBuffer(dst)

	runs := 1
	for i := 1; i < len(batch); i++ {
		if batch[i].Sector != batch[i-1].Sector {
			runs++
		}
	}
	buf.EncodeVarint(uint64(runs))

	keys := make([]byte, 0, qlm.StateBytes*len(batch))
	for lo := 0; lo < len(batch); {
		hi := lo + 1
		for hi < len(batch) && batch[hi].Sector == batch[lo].Sector {
			hi++
		}
		keys = keys[:0]
		for _, st := range batch[lo:hi] {
			keys = st.State.AppendKey(keys)
		}
		buf.EncodeStringBytes(batch[lo].Sector.Tag())
		buf.EncodeVarint(uint64(hi - lo))
		buf.EncodeRawBytes(keys)
		lo = hi
	}
	return buf.Bytes()
}

func decodeBatch(raw []byte, batch []qlm.SectorState) ([]qlm.SectorState, error) {
	buf := proto.NewBuffer(raw)

	runs, err := buf.DecodeVarint()
	if err != nil || runs > uint64(len(raw)) {
		return nil, errors.Wrap(qlm.ErrCorruptRecord, "archive run count")
	}
	for ri := uint64(0); ri < runs; ri++ {
		tag, err := buf.DecodeStringBytes()
		if err != nil {
			return nil, errors.Wrapf(qlm.ErrCorruptRecord, "archive run %d", ri)
		}
		sec, err := qlm.ParseSectorTag(tag)
		if err != nil {
			return nil, err
		}
		count, err := buf.DecodeVarint()
		if err != nil {
			return nil, errors.Wrapf(qlm.ErrCorruptRecord, "archive run %d count", ri)
		}
		keys, err := buf.DecodeRawBytes(false)
		if err != nil || uint64(len(keys)) != count*qlm.StateBytes {
			return nil, errors.Wrapf(qlm.ErrCorruptRecord, "archive run %d keys", ri)
		}
		for ; len(keys) > 0; keys = keys[qlm.StateBytes:] {
			s, err := qlm.StateFromKey(keys[:qlm.StateBytes])
			if err != nil {
				return nil, err
			}
			batch = append(batch, qlm.SectorState{State: s, Sector: sec})
		}
	}
	return batch, nil
}

func appendFrame(dst, raw []byte, codec Codec) ([]byte, error) {
	data, codec, err := compress(raw, codec)
	if err != nil {
		return nil, err
	}
	dst = append(dst, byte(codec))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(raw)))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(data)))
	return append(dst, data...), nil
}

// readFrame reads the next frame from r and returns its raw payload, or io.EOF at a clean end of stream.
func readFrame(r io.Reader, data []byte) (raw, buf []byte, err error) {
	var hdr [frameHeaderSize]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, data, io.EOF
		}
		return nil, data, errors.Wrap(qlm.ErrCorruptRecord, "truncated frame header")
	}
	codec := Codec(hdr[0])
	rawLen := binary.LittleEndian.Uint32(hdr[1:])
	dataLen := binary.LittleEndian.Uint32(hdr[5:])
	if rawLen > maxFrameSize || dataLen > maxFrameSize {
		return nil, data, errors.Wrap(qlm.ErrCorruptRecord, "frame too large")
	}

	if cap(data) < int(dataLen) {
		data = make([]byte, dataLen)
	}
	data = data[:dataLen]
	if _, err = io.ReadFull(r, data); err != nil {
		return nil, data, errors.Wrap(qlm.ErrCorruptRecord, "truncated frame")
	}
	raw, err = decompress(data, codec, int(rawLen))
	return raw, data, err
}

// compress returns the frame data and the codec actually used; data that doesn't shrink is stored as is.
func compress(raw []byte, codec Codec) ([]byte, Codec, error) {
	var data []byte
	switch codec {
	case CodecNone:
		return raw, CodecNone, nil
	case CodecLZ4:
		data = make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, data, nil)
		if err != nil {
			return nil, 0, err
		}
		data = data[:n]
	case CodecZstd:
		enc := getZstdEncoder()
		data = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, 0, errors.Errorf("unknown archive codec %d", codec)
	}
	if len(data) == 0 || len(data) >= len(raw) {
		return raw, CodecNone, nil
	}
	return data, codec, nil
}

func decompress(data []byte, codec Codec, rawLen int) ([]byte, error) {
	switch codec {
	case CodecNone:
		if len(data) != rawLen {
			return nil, errors.Wrap(qlm.ErrCorruptRecord, "stored frame size")
		}
		return data, nil
	case CodecLZ4:
		raw := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(data, raw)
		if err != nil || n != rawLen {
			return nil, errors.Wrap(qlm.ErrCorruptRecord, "lz4 frame")
		}
		return raw, nil
	case CodecZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		raw, err := dec.DecodeAll(data, make([]byte, 0, rawLen))
		if err != nil || len(raw) != rawLen {
			return nil, errors.Wrap(qlm.ErrCorruptRecord, "zstd frame")
		}
		return raw, nil
	}
	return nil, errors.Wrapf(qlm.ErrCorruptRecord, "unknown frame codec %d", codec)
}

// Replay reads every frame from r and passes each one to sink as a single batch.
// It returns the number of states replayed.
func Replay(r io.Reader, sink qlm.StateSink) (int64, error) {
	br := bufio.NewReader(r)

	var (
		raw   []byte
		data  []byte
		batch []qlm.SectorState
		total int64
		err   error
	)
	for {
		raw, data, err = readFrame(br, data)
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		batch, err = decodeBatch(raw, batch[:0])
		if err != nil {
			return total, err
		}
		if err = sink.WriteStates(batch); err != nil {
			return total, err
		}
		total += int64(len(batch))
	}
}

// ReplayFile replays the archive file at pathname into sink.
func ReplayFile(pathname string, sink qlm.StateSink) (int64, error) {
	file, err := os.Open(pathname)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	return Replay(file, sink)
}

// AppendLevel appends a self-contained frame holding states (with no sector) to dst.
func AppendLevel(dst []byte, states []qlm.State, codec Codec) ([]byte, error) {
	keys := make([]byte, 0, qlm.StateBytes*len(states))
	for _, s := range states {
		keys = s.AppendKey(keys)
	}
	buf := proto.NewBuffer(make([]byte, 0, len(keys)+16))
	buf.EncodeVarint(uint64(len(states)))
	buf.EncodeRawBytes(keys)
	return appendFrame(dst, buf.Bytes(), codec)
}

// ReadLevel decodes a frame written by AppendLevel.
func ReadLevel(r io.Reader) ([]qlm.State, error) {
	raw, _, err := readFrame(r, nil)
	if err == io.EOF {
		return nil, errors.Wrap(qlm.ErrCorruptRecord, "empty level frame")
	}
	if err != nil {
		return nil, err
	}

	buf := proto.NewBuffer(raw)
	count, err := buf.DecodeVarint()
	if err != nil {
		return nil, errors.Wrap(qlm.ErrCorruptRecord, "level state count")
	}
	keys, err := buf.DecodeRawBytes(false)
	if err != nil || uint64(len(keys)) != count*qlm.StateBytes {
		return nil, errors.Wrap(qlm.ErrCorruptRecord, "level state keys")
	}

	states := make([]qlm.State, 0, count)
	for ; len(keys) > 0; keys = keys[qlm.StateBytes:] {
		s, err := qlm.StateFromKey(keys[:qlm.StateBytes])
		if err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, nil
}
