package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/urfave/cli/v3"

	"github.com/starford/twhost/internal/empty"
	"github.com/starford/twhost/internal/twfile"
)

// Offline commands that work on a wiki file directly, without the index.

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "new",
		Usage:     "Write an empty wiki to FILE",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Value: empty.KindTW5, Usage: "one of: " + strings.Join(empty.Kinds(), ", ")},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			path, err := fileArg(cmd)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			data, err := empty.Get(cmd.String("kind"))
			if err != nil {
				return err
			}
			return atomic.WriteFile(path, bytes.NewReader(data))
		},
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the dialect, version and encryption state of FILE",
		ArgsUsage: "FILE",
		Action: func(_ context.Context, cmd *cli.Command) error {
			f, err := openWiki(cmd)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, struct {
				twfile.Format
				Valid    bool `json:"valid"`
				Tiddlers int  `json:"tiddlers"`
			}{f.Format(), f.LooksValid(), len(f.Titles(true))})
		},
	}
}

func tiddlersCommand() *cli.Command {
	return &cli.Command{
		Name:      "tiddlers",
		Usage:     "Print tiddlers of FILE as JSON",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "include-system", Usage: "include $:/ tiddlers"},
			&cli.BoolFlag{Name: "skinny", Usage: "titles and tags only"},
			&cli.StringSliceFlag{Name: "title", Aliases: []string{"t"}, Usage: "select tiddlers by title"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			f, err := openWiki(cmd)
			if err != nil {
				return err
			}
			tiddlers, err := f.Tiddlers(twfile.Query{
				Titles:        cmd.StringSlice("title"),
				IncludeSystem: cmd.Bool("include-system"),
				Skinny:        cmd.Bool("skinny"),
			})
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, tiddlers)
		},
	}
}

func writeCommand() *cli.Command {
	return &cli.Command{
		Name:      "write",
		Usage:     "Write one tiddler, or a JSON batch from --json, into FILE",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Usage: "tiddler title"},
			&cli.StringFlag{Name: "text", Usage: "tiddler text"},
			&cli.StringFlag{Name: "tags", Usage: "tags in list syntax"},
			&cli.StringFlag{Name: "json", Usage: "file with a JSON object or array of tiddlers, - for stdin"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file (default: overwrite FILE)"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			path, err := fileArg(cmd)
			if err != nil {
				return err
			}
			f, err := openWiki(cmd)
			if err != nil {
				return err
			}
			entries, err := writeEntries(cmd)
			if err != nil {
				return err
			}
			if f.Encrypted() {
				fmt.Fprintf(os.Stderr, "%s is encrypted, nothing written\n", path)
				return nil
			}
			if _, err := f.WriteTiddlers(entries); err != nil {
				return err
			}

			var buf bytes.Buffer
			if _, err := f.WriteTo(&buf); err != nil {
				return err
			}
			out := cmd.String("out")
			if out == "" {
				out = path
			}
			if err := atomic.WriteFile(out, &buf); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(os.Stdout, "wrote %d tiddler(s) to %s\n", len(entries), out)
			return nil
		},
	}
}

func writeEntries(cmd *cli.Command) ([]twfile.Entry, error) {
	if src := cmd.String("json"); src != "" {
		var r io.Reader = os.Stdin
		if src != "-" {
			fh, err := os.Open(src)
			if err != nil {
				return nil, err
			}
			defer fh.Close()
			r = fh
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return twfile.ParseEntries(data)
	}
	title := cmd.String("title")
	if title == "" {
		return nil, errors.New("--title or --json is required")
	}
	return []twfile.Entry{{
		Title: title,
		Data:  twfile.Structured(cmd.String("text"), cmd.String("tags")),
	}}, nil
}

func fileArg(cmd *cli.Command) (string, error) {
	path := cmd.Args().First()
	if path == "" {
		return "", errors.New("FILE argument is required")
	}
	return path, nil
}

func openWiki(cmd *cli.Command) (*twfile.File, error) {
	path, err := fileArg(cmd)
	if err != nil {
		return nil, err
	}
	f, err := twfile.FromFile(path)
	if err != nil {
		return nil, err
	}
	if !f.LooksValid() {
		return nil, fmt.Errorf("%s does not look like a TiddlyWiki", path)
	}
	return f, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
