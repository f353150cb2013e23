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
	"fmt"

	spfcbr "github.com/spf13/cobra"

	"github.com/sabouaram/zrp/internal/zconfig"
)

func newDumpConfigCmd() *spfcbr.Command {
	var full bool

	cmd := &spfcbr.Command{
		Use:   "dump_config",
		Short: "print a config.json template to stdout",
		Args:  spfcbr.NoArgs,
		RunE: func(cmd *spfcbr.Command, args []string) error {
			var (
				out string
				err error
			)

			switch role {
			case "client":
				if full {
					out, err = zconfig.DumpJSON(zconfig.ExampleClientConfig())
				} else {
					out, err = zconfig.DumpJSON(zconfig.DefaultClientConfig())
				}
			case "server":
				if full {
					out, err = zconfig.DumpJSON(zconfig.ExampleServerConfig())
				} else {
					out, err = zconfig.DumpJSON(zconfig.DefaultServerConfig())
				}
			default:
				return fmt.Errorf("zrp: unknown --role %q, want \"client\" or \"server\"", role)
			}
			if err != nil {
				return err
			}

			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "include a populated sample tcp_shares entry (client) or every tunable (server)")

	return cmd
}
