package confloader

import "errors"

// ErrReadBytesNotSupported marks the unused half of the koanf
// provider contract; map providers serve Read only.
var ErrReadBytesNotSupported = errors.New("confloader: map provider supports Read, not ReadBytes")

// mapProvider feeds an in-memory map (the defaults) into koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytesNotSupported
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
