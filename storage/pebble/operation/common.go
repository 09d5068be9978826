package operation

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/h2registry/h2-registry/module/irrecoverable"
	"github.com/h2registry/h2-registry/storage"
)

func insert(key []byte, val interface{}) func(pebble.Writer) error {
	return func(w pebble.Writer) error {
		value, err := encodeEntity(val)
		if err != nil {
			return err
		}

		err = w.Set(key, value, nil)
		if err != nil {
			return irrecoverable.NewExceptionf("failed to store data: %w", err)
		}

		return nil
	}
}

func retrieve(key []byte, sc interface{}) func(r pebble.Reader) error {
	return func(r pebble.Reader) error {
		val, closer, err := r.Get(key)
		if err != nil {
			return convertNotFoundError(err)
		}
		defer closer.Close()

		return decodeValue(val, sc)
	}
}

func exists(key []byte, keyExists *bool) func(r pebble.Reader) error {
	return func(r pebble.Reader) error {
		_, closer, err := r.Get(key)
		if err != nil {
			if errors.Is(err, pebble.ErrNotFound) {
				*keyExists = false
				return nil
			}

			// exception while checking for the key
			return irrecoverable.NewExceptionf("could not load data: %w", err)
		}
		*keyExists = true
		defer closer.Close()
		return nil
	}
}

// traverse decodes every value whose key starts with prefix, in key order.
// create returns the decode target of the next value, handle processes it.
func traverse(prefix []byte, create func() interface{}, handle func() error) func(r pebble.Reader) error {
	return func(r pebble.Reader) error {
		it, err := r.NewIter(&pebble.IterOptions{
			LowerBound: prefix,
			UpperBound: prefixUpperBound(prefix),
		})
		if err != nil {
			return irrecoverable.NewExceptionf("could not create iterator: %w", err)
		}
		defer it.Close()

		for valid := it.First(); valid; valid = it.Next() {
			val, err := it.ValueAndErr()
			if err != nil {
				return irrecoverable.NewExceptionf("could not read value of key %x: %w", it.Key(), err)
			}
			err = decodeValue(val, create())
			if err != nil {
				return err
			}
			err = handle()
			if err != nil {
				return fmt.Errorf("could not handle entity: %w", err)
			}
		}
		return it.Error()
	}
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil if there is none.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func convertNotFoundError(err error) error {
	if errors.Is(err, pebble.ErrNotFound) {
		return storage.ErrNotFound
	}
	return err
}
