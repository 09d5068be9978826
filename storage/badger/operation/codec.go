package operation

import (
	"errors"
	"fmt"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v4"

	"github.com/h2registry/h2-registry/module/irrecoverable"
)

// Every stored value starts with one byte naming its codec, so values written
// with compression disabled stay readable once it is enabled again.
const (
	codecMsgpack       = byte(0x01)
	codecSnappyMsgpack = byte(0x02)
)

var errUncompressedValue = errors.New("could not uncompress data")

var compressEnabled = true

func setCompressDisabled() {
	compressEnabled = false
}

// encodeEntity encodes the entity with msgpack, compressed with snappy unless
// compression is disabled.
// possible error to return is irrecoverable.exception
func encodeEntity(entity interface{}) ([]byte, error) {
	val, err := msgpack.Marshal(entity)
	if err != nil {
		return nil, irrecoverable.NewExceptionf("could not encode entity: %w", err)
	}
	if !compressEnabled {
		return append([]byte{codecMsgpack}, val...), nil
	}
	compressed := make([]byte, 1, 1+snappy.MaxEncodedLen(len(val)))
	compressed[0] = codecSnappyMsgpack
	return append(compressed, snappy.Encode(nil, val)...), nil
}

// decodeValue decodes a stored value into the entity, whichever codec wrote it.
// possible error to return is irrecoverable.exception
func decodeValue(val []byte, entity interface{}) error {
	if len(val) == 0 {
		return irrecoverable.NewExceptionf("could not decode entity: empty value")
	}

	data := val[1:]
	switch val[0] {
	case codecMsgpack:
	case codecSnappyMsgpack:
		var err error
		data, err = snappy.Decode(nil, data)
		if err != nil {
			return irrecoverable.NewException(fmt.Errorf("%s: %w", err, errUncompressedValue))
		}
	default:
		return irrecoverable.NewExceptionf("could not decode entity: unknown codec 0x%02x", val[0])
	}

	err := msgpack.Unmarshal(data, entity)
	if err != nil {
		return irrecoverable.NewExceptionf("could not decode entity: %w", err)
	}
	return nil
}

func isErrUncompressedValue(err error) bool {
	return errors.Is(err, errUncompressedValue)
}
