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

// Command zrp runs either side of the reverse TCP tunnel: a publicly
// reachable server, or a client behind NAT sharing local services onto it.
package main

import (
	"os"

	"github.com/fatih/color"

	"github.com/sabouaram/zrp/cmd/zrp/internal/cli"
)

func main() {
	parseEnv()
	os.Exit(cli.Execute())
}

// parseEnv mirrors parse_env(): ZRP_NOCOLOR/ZRP_FORCECOLOR override TTY
// detection for ANSI coloring, independent of anything cobra parses.
func parseEnv() {
	if os.Getenv("ZRP_FORCECOLOR") != "" {
		color.NoColor = false
	} else if os.Getenv("ZRP_NOCOLOR") != "" {
		color.NoColor = true
	}
}
