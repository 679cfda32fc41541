package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tracekit/pkg/demux"
)

var demuxKeys []string

var demuxCmd = &cobra.Command{
	Use:   "demux",
	Short: "Demultiplex keyed lines from stdin to per-key consumers",
	Long: `Reads lines of the form "key value" from stdin and routes them to one
consumer goroutine per requested key. Each consumer prints the values
it receives; a consumer whose key never arrives times out.`,
	Example: `  printf 'a 1\nb 2\na 3\n' | tracekit demux --keys a,b`,
	RunE:    runDemux,
}

func init() {
	demuxCmd.Flags().StringSliceVar(&demuxKeys, "keys", []string{"a", "b"}, "keys to consume")
}

type line struct {
	key   string
	value string
}

func runDemux(cmd *cobra.Command, args []string) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	source := func() (any, error) {
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			key, value, _ := strings.Cut(text, " ")
			return line{key: key, value: value}, nil
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	d, err := demux.New(source,
		func(item any) any { return item.(line).key },
		demux.WithTimeout(cfg.Demux.Timeout()),
		demux.WithLogger(logger))
	if err != nil {
		return err
	}

	var g errgroup.Group
	for _, key := range demuxKeys {
		g.Go(func() error {
			for {
				item, err := d.Get(key)
				if err != nil {
					if errors.Is(err, io.EOF) || errors.Is(err, demux.ErrTimeout) {
						return nil
					}
					return fmt.Errorf("consumer %q: %w", key, err)
				}
				cmd.Printf("%s <- %s\n", key, item.(line).value)
			}
		})
	}
	return g.Wait()
}
