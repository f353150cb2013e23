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

// Package cli wires the zrp command-line surface: run, dump_config, and
// the implicit help, via spf13/cobra.
package cli

import (
	"fmt"
	"os"

	spfcbr "github.com/spf13/cobra"
)

// role selects which side of the tunnel "run" and "dump_config" act on.
// The protocol is shared; the role only picks which config shape and
// which of client.Controller / server.Server gets built.
var role string

func newRootCmd() *spfcbr.Command {
	root := &spfcbr.Command{
		Use:           "zrp",
		Short:         "zrp runs either side of a reverse TCP tunnel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&role, "role", "server", `which side to act as: "client" or "server"`)

	root.AddCommand(newRunCmd())
	root.AddCommand(newDumpConfigCmd())

	return root
}

// Execute parses and runs the command line, returning the process exit
// code: 0 on graceful stop, 1 on error or bad arguments (§6).
func Execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
