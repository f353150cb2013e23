/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	spfcbr "github.com/spf13/cobra"

	"github.com/sabouaram/zrp/console"
	"github.com/sabouaram/zrp/logger"

	"github.com/sabouaram/zrp/internal/rlimit"
	"github.com/sabouaram/zrp/internal/tunnel/client"
	"github.com/sabouaram/zrp/internal/tunnel/server"
	"github.com/sabouaram/zrp/internal/zconfig"
	"github.com/sabouaram/zrp/internal/zlog"
)

func newRunCmd() *spfcbr.Command {
	return &spfcbr.Command{
		Use:   "run [path/to/config.json]",
		Short: "run as client or server until stopped",
		Args:  spfcbr.MaximumNArgs(1),
		RunE: func(cmd *spfcbr.Command, args []string) error {
			path := "config.json"
			if len(args) == 1 {
				path = args[0]
			}
			return runMain(role, path)
		},
	}
}

func runMain(role, path string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := zlog.Base(ctx)

	switch role {
	case "client":
		return runClient(ctx, log, path)
	case "server":
		return runServer(ctx, log, path)
	default:
		return fmt.Errorf("zrp: unknown --role %q, want \"client\" or \"server\"", role)
	}
}

func runClient(ctx context.Context, log logger.Logger, path string) error {
	cfg, err := zconfig.LoadClientConfig(path)
	if err != nil {
		return err
	}

	if n, rerr := rlimit.TrySetNoFile(cfg.RlimitNoFile); rerr != nil {
		log.Info("could not raise rlimit_nofile", rerr)
	} else {
		log.Info("rlimit_nofile in effect", n)
	}

	ctrl := client.New(cfg, log)

	return runUntilStopOrSignal(func() error {
		return ctrl.Run(ctx)
	}, ctrl.TryStop)
}

func runServer(ctx context.Context, log logger.Logger, path string) error {
	cfg, err := zconfig.LoadServerConfig(path)
	if err != nil {
		return err
	}

	if n, rerr := rlimit.TrySetNoFile(cfg.RlimitNoFile); rerr != nil {
		log.Info("could not raise rlimit_nofile", rerr)
	} else {
		log.Info("rlimit_nofile in effect", n)
	}

	srv := server.New(cfg, log)

	return runUntilStopOrSignal(func() error {
		return srv.Run(ctx)
	}, srv.TryStop)
}

// runUntilStopOrSignal runs body in the current goroutine while watching
// for SIGINT: the first signal try-stops the running entity for a graceful
// shutdown, the second aborts the process immediately (§7).
func runUntilStopOrSignal(body func() error, tryStop func()) error {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	done := make(chan error, 1)
	go func() { done <- body() }()

	graceful := false
	for {
		select {
		case err := <-done:
			if err != nil && !graceful {
				return err
			}
			return nil

		case <-sig:
			if graceful {
				console.ColorPrint.Println("got interrupt again, aborting")
				os.Exit(1)
			}
			graceful = true
			console.ColorPrint.Println("got interrupt, trying to grace exit ..")
			tryStop()
		}
	}
}
