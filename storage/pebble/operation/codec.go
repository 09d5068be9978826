package operation

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/h2registry/h2-registry/module/irrecoverable"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// deterministic encoding, timestamps keep their nanoseconds
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(err)
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

func encodeEntity(entity interface{}) ([]byte, error) {
	val, err := encMode.Marshal(entity)
	if err != nil {
		return nil, irrecoverable.NewExceptionf("failed to encode value: %w", err)
	}
	return val, nil
}

func decodeValue(val []byte, entity interface{}) error {
	err := decMode.Unmarshal(val, entity)
	if err != nil {
		return irrecoverable.NewExceptionf("failed to decode value: %w", err)
	}
	return nil
}
