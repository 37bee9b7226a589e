package ncz

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// One shared decoder for DecodeAll use; per-level encoder pools so parallel
// block compression does not allocate an encoder per block.
var (
	decoder, _ = zstd.NewReader(nil)

	encoderPools sync.Map // int → *sync.Pool
)

func getEncoder(level int) *zstd.Encoder {
	pool, ok := encoderPools.Load(level)
	if !ok {
		pool, _ = encoderPools.LoadOrStore(level, &sync.Pool{
			New: func() any {
				enc, _ := zstd.NewWriter(nil,
					zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
					zstd.WithEncoderConcurrency(1),
				)
				return enc
			},
		})
	}
	return pool.(*sync.Pool).Get().(*zstd.Encoder)
}

func putEncoder(level int, enc *zstd.Encoder) {
	if pool, ok := encoderPools.Load(level); ok {
		pool.(*sync.Pool).Put(enc)
	}
}

// compress returns src compressed at the given zstd level.
func compress(src []byte, level int) []byte {
	enc := getEncoder(level)
	defer putEncoder(level, enc)
	return enc.EncodeAll(src, make([]byte, 0, len(src)))
}

// decompress inflates a whole zstd frame.
func decompress(src []byte, sizeHint int) ([]byte, error) {
	return decoder.DecodeAll(src, make([]byte, 0, sizeHint))
}
