package daemon

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
)

// StopContext is cancelled on SIGINT/SIGTERM or when "q" is entered on stdin
func StopContext(parent context.Context, stdin io.Reader, logger logrus.FieldLogger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(ctx)

	if stdin != nil {
		go WatchQuit(ctx, stdin, cancel, logger)
	}

	return ctx, func() {
		cancel()
		stop()
	}
}

// WatchQuit cancels when a line reading "q" arrives on r. It returns when r ends or ctx is done.
func WatchQuit(ctx context.Context, r io.Reader, cancel context.CancelFunc, logger logrus.FieldLogger) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.EqualFold(strings.TrimSpace(line), "q") {
				logger.Info("Quit requested")
				cancel()
				return
			}
		}
	}
}
