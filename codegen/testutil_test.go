package codegen_test

import (
	"io"

	"github.com/rs/zerolog"
)

func discardLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}
