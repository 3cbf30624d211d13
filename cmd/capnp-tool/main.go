// Command capnp-tool is a small developer utility for working with
// Cap'n Proto messages from the shell: packing, unpacking, and validating
// a message against a compiled schema request, independent of any
// particular generated Go type.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	capnp "github.com/relaycore/capnp"
	"github.com/relaycore/capnp/codegen"
	"github.com/relaycore/capnp/internal/exc"
	"github.com/relaycore/capnp/packed"
	"github.com/relaycore/capnp/schema"
)

var log zerolog.Logger

func main() {
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	app := &cli.App{
		Name:  "capnp-tool",
		Usage: "inspect and transform Cap'n Proto messages",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "emit debug-level logs"},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			packCommand(),
			unpackCommand(),
			validateCommand(),
			canonicalizeCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("capnp-tool failed")
		os.Exit(exitCodeFor(err))
	}
}

func packCommand() *cli.Command {
	return &cli.Command{
		Name:  "pack",
		Usage: "read an unpacked message from stdin and write its packed form to stdout",
		Action: func(c *cli.Context) error {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return exc.WrapError("read stdin", err)
			}
			out := packed.Pack(nil, data)
			_, err = os.Stdout.Write(out)
			return err
		},
	}
}

func unpackCommand() *cli.Command {
	return &cli.Command{
		Name:  "unpack",
		Usage: "read a packed message from stdin and write its unpacked form to stdout",
		Action: func(c *cli.Context) error {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return exc.WrapError("read stdin", err)
			}
			out, err := packed.Unpack(nil, data)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "validate a message on stdin against a CodeGeneratorRequest schema",
		ArgsUsage: "<schema-request-file> <root-struct-id-hex>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return cli.Exit("usage: capnp-tool validate <schema-request-file> <root-struct-id-hex>", 2)
			}
			reqFile := c.Args().Get(0)
			rootId, err := parseHexId(c.Args().Get(1))
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			reqData, err := os.ReadFile(reqFile)
			if err != nil {
				return exc.WrapError("read schema request", err)
			}
			reqMsg, err := capnp.Unmarshal(reqData)
			if err != nil {
				return err
			}
			req, err := codegen.ParseRequest(reqMsg)
			if err != nil {
				return err
			}

			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return exc.WrapError("read stdin", err)
			}
			msg, err := capnp.Unmarshal(data)
			if err != nil {
				return err
			}

			if err := schema.Validate(req.Graph, rootId, msg, schema.DefaultOptions()); err != nil {
				return err
			}
			log.Info().Msg("message is valid")
			return nil
		},
	}
}

func canonicalizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "canonicalize",
		Usage: "read a message on stdin and write its canonical single-segment form to stdout",
		Action: func(c *cli.Context) error {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return exc.WrapError("read stdin", err)
			}
			msg, err := capnp.Unmarshal(data)
			if err != nil {
				return err
			}
			root, err := msg.Root()
			if err != nil {
				return err
			}
			out, err := capnp.Canonicalize(root.Struct())
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
}

func parseHexId(s string) (uint64, error) {
	var id uint64
	_, err := fmt.Sscanf(s, "0x%x", &id)
	if err != nil {
		return 0, fmt.Errorf("invalid struct id %q: %w", s, err)
	}
	return id, nil
}

func exitCodeFor(err error) int {
	switch exc.KindOf(err).Category() {
	case "schema":
		return 2
	case "wire":
		return 3
	default:
		return 1
	}
}
