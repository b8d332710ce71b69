package cache

import (
	"fmt"

	"driver-nav-service/internal/domain"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Cell payloads are msgpack-encoded domain.MapData compressed with zstd.

var (
	zenc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zdec, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

func encodeCell(data domain.MapData) ([]byte, error) {
	raw, err := msgpack.Marshal(&data)
	if err != nil {
		return nil, fmt.Errorf("encode cell: msgpack: %w", err)
	}
	return zenc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func decodeCell(b []byte) (domain.MapData, error) {
	raw, err := zdec.DecodeAll(b, nil)
	if err != nil {
		return domain.MapData{}, fmt.Errorf("decode cell: zstd: %w", err)
	}
	var data domain.MapData
	if err := msgpack.Unmarshal(raw, &data); err != nil {
		return domain.MapData{}, fmt.Errorf("decode cell: msgpack: %w", err)
	}
	return data, nil
}
