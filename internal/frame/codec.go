package frame

import (
	"fmt"

	"github.com/tturner/labctl/internal/command"
)

// Codec builds and parses frames for one dialect.
type Codec interface {
	Dialect() command.Dialect
	Encode(spec command.Spec, req Request) (Frame, error)
	Decode(spec command.Spec, raw []byte) (Result, error)
}

var codecs = map[command.Dialect]Codec{
	command.DialectCRC16: RTU{},
	command.DialectSum:   Sum{},
	command.DialectSum16: Sum16{},
	command.DialectASCII: ASCII{},
}

// For returns the codec for a dialect.
func For(d command.Dialect) (Codec, error) {
	c, ok := codecs[d]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, d)
	}
	return c, nil
}

// Encode encodes req with the codec of the spec's dialect.
func Encode(spec command.Spec, req Request) (Frame, error) {
	c, err := For(spec.Dialect)
	if err != nil {
		return Frame{}, err
	}
	return c.Encode(spec, req)
}

// Decode decodes raw with the codec of the spec's dialect.
func Decode(spec command.Spec, raw []byte) (Result, error) {
	c, err := For(spec.Dialect)
	if err != nil {
		return Result{}, err
	}
	return c.Decode(spec, raw)
}
