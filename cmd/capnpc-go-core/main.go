// Command capnpc-go-core is a code generation plugin: it reads a
// CodeGeneratorRequest from stdin and writes one Go source file per
// requested schema file into the current directory, following the plugin
// protocol described in spec.md §3 ("invoked with no flags... the
// generator must not prompt or print to stdout outside of the generated
// file stream").
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/relaycore/capnp/codegen"
	"github.com/relaycore/capnp/internal/exc"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("cmd", "capnpc-go-core").Logger()

	err := codegen.RunPlugin(os.Stdin, writeGeneratedFile, log)
	if err != nil {
		log.Error().Err(err).Msg("code generation failed")
		os.Exit(exitCodeFor(err))
	}
}

func writeGeneratedFile(f codegen.GeneratedFile) error {
	return os.WriteFile(f.Name, f.Body, 0o644)
}

// exitCodeFor writes one stderr line led by the error's category tag
// (exc.Kind.Category) and returns the exit status, which is 1 for every
// error.
func exitCodeFor(err error) int {
	fmt.Fprintf(os.Stderr, "%s: %v\n", exc.KindOf(err).Category(), err)
	return 1
}
