// nsprobe connects to an nsmuxd server, sends envelopes, and prints every
// frame it receives.
// Usage: go run ./cmd/nsprobe --url ws://localhost:8080/websockets echo 1 echo '"hi"'
//
// Arguments are namespace/value pairs. With no arguments, lines of the form
// "namespace value" are read from stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/nsmux/internal/transport"
	"github.com/rickgao/nsmux/internal/version"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/websockets", "server websocket URL")
	origin := flag.String("origin", "", "Origin header to send")
	linger := flag.Duration("linger", 2*time.Second, "how long to keep reading after the last send")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent("nsprobe"))
	if *origin != "" {
		header.Set("Origin", *origin)
	}

	client, err := transport.Dial(ctx, *url, header, transport.DefaultOptions(), logger)
	if err != nil {
		logger.Error("failed to connect", "url", *url, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("connected", "url", *url, "remote", client.RemoteAddr())

	var source lineSource
	if flag.NArg() > 0 {
		source, err = argSource(flag.Args())
		if err != nil {
			logger.Error("invalid arguments", "error", err)
			os.Exit(2)
		}
	} else {
		source = readerSource(os.Stdin)
	}

	if err := probe(ctx, client, source, os.Stdout, *linger, logger); err != nil {
		logger.Error("probe failed", "error", err)
		os.Exit(1)
	}
}

// lineSource yields envelopes to send until io.EOF.
type lineSource func() ([]byte, error)

func argSource(args []string) (lineSource, error) {
	if len(args)%2 != 0 {
		return nil, fmt.Errorf("expected namespace/value pairs, got %d arguments", len(args))
	}

	var frames [][]byte
	for i := 0; i < len(args); i += 2 {
		frame, err := buildEnvelope(args[i], args[i+1])
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}

	return func() ([]byte, error) {
		if len(frames) == 0 {
			return nil, io.EOF
		}
		f := frames[0]
		frames = frames[1:]
		return f, nil
	}, nil
}

func readerSource(r io.Reader) lineSource {
	scanner := bufio.NewScanner(r)
	return func() ([]byte, error) {
		for scanner.Scan() {
			frame, err := parseLine(scanner.Text())
			if errors.Is(err, errBlankLine) {
				continue
			}
			return frame, err
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
}

// probe runs the writer and the printer until the source is exhausted and
// linger elapses, the server closes, or ctx is cancelled.
func probe(ctx context.Context, client transport.Transport, next lineSource, out io.Writer, linger time.Duration, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	sendDone := make(chan struct{})

	g.Go(func() error {
		defer close(sendDone)
		for {
			frame, err := next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				logger.Warn("skipping input", "error", err)
				continue
			}
			if err := client.Send(frame); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			logger.Debug("sent", "frame", string(frame))
		}
	})

	g.Go(func() error {
		sent := (<-chan struct{})(sendDone)
		var deadline <-chan time.Time
		for {
			select {
			case <-sent:
				sent = nil
				deadline = time.After(linger)
			case <-deadline:
				return nil
			case <-gctx.Done():
				return nil
			default:
			}

			data, ok, err := client.TryReceive()
			if errors.Is(err, io.EOF) {
				logger.Info("server closed the connection")
				return nil
			}
			if err != nil {
				return fmt.Errorf("receive: %w", err)
			}
			if ok {
				fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.RFC3339Nano), data)
				continue
			}
			if _, err := client.PollReadable(gctx, 100*time.Millisecond); err != nil && gctx.Err() == nil {
				return fmt.Errorf("poll: %w", err)
			}
		}
	})

	return g.Wait()
}
