package transport

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/magbak/mbei/internal/domain/event"
)

// compressionType tags the wire header byte: whether the frame's payload
// is raw gob bytes or zstd-compressed gob bytes.
type compressionType byte

const (
	compressionNone compressionType = 0x00
	compressionZstd compressionType = 0x01
)

// compressionThreshold is the minimum gob-encoded size before compression
// is attempted at all.
const compressionThreshold = 1024

// compressionRatio bounds the compressed size: the compressed form is kept
// only when it is smaller than compressionRatio times the raw size;
// otherwise the frame falls back to raw bytes.
const compressionRatio = 0.8

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("transport: failed to create zstd encoder: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("transport: failed to create zstd decoder: %v", err))
	}
}

// encodeFrame gob-encodes u, optionally zstd-compresses the result, and
// prefixes it with the 5-byte header [1 byte type][4 bytes original size].
// The caller is responsible for prefixing the frame with its own 4-byte
// length before writing it to a stream connection.
func encodeFrame(u event.Update) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(u); err != nil {
		return nil, fmt.Errorf("transport: encoding update: %w", err)
	}
	raw := buf.Bytes()

	if len(raw) < compressionThreshold {
		return wrapFrame(compressionNone, raw, len(raw)), nil
	}
	compressed := zstdEncoder.EncodeAll(raw, nil)
	if float64(len(compressed)) < float64(len(raw))*compressionRatio {
		return wrapFrame(compressionZstd, compressed, len(raw)), nil
	}
	return wrapFrame(compressionNone, raw, len(raw)), nil
}

func wrapFrame(t compressionType, payload []byte, originalSize int) []byte {
	out := make([]byte, 5+len(payload))
	out[0] = byte(t)
	binary.BigEndian.PutUint32(out[1:5], uint32(originalSize))
	copy(out[5:], payload)
	return out
}

// decodeFrame reverses encodeFrame.
func decodeFrame(frame []byte) (event.Update, error) {
	if len(frame) < 5 {
		return event.Update{}, fmt.Errorf("transport: frame too short: %d bytes", len(frame))
	}
	t := compressionType(frame[0])
	originalSize := binary.BigEndian.Uint32(frame[1:5])
	payload := frame[5:]

	var raw []byte
	switch t {
	case compressionNone:
		if uint32(len(payload)) != originalSize {
			return event.Update{}, fmt.Errorf("transport: size mismatch: expected %d, got %d", originalSize, len(payload))
		}
		raw = payload
	case compressionZstd:
		decoded, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return event.Update{}, fmt.Errorf("transport: zstd decompression failed: %w", err)
		}
		if uint32(len(decoded)) != originalSize {
			return event.Update{}, fmt.Errorf("transport: decompressed size mismatch: expected %d, got %d", originalSize, len(decoded))
		}
		raw = decoded
	default:
		return event.Update{}, fmt.Errorf("transport: unknown compression type: %d", t)
	}

	var u event.Update
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&u); err != nil {
		return event.Update{}, fmt.Errorf("transport: decoding update: %w", err)
	}
	return u, nil
}

// ackFrame is the server's response to an accepted frame: the queue's size
// immediately after insertion, giving the sender a cheap backpressure signal
// without a separate status RPC.
type ackFrame struct {
	QueueSize int
}

func encodeAck(queueSize int) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ackFrame{QueueSize: queueSize}); err != nil {
		return nil, fmt.Errorf("transport: encoding ack: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeAck(payload []byte) (int, error) {
	var a ackFrame
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&a); err != nil {
		return 0, fmt.Errorf("transport: decoding ack: %w", err)
	}
	return a.QueueSize, nil
}
