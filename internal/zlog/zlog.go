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

// Package zlog wires the tunnel's components to the golib structured
// logger, contextualising each component with the fields an operator
// needs to follow one connection across the log stream.
package zlog

import (
	"context"
	"os"
	"strings"

	"github.com/sabouaram/zrp/logger"
	loglvl "github.com/sabouaram/zrp/logger/level"
)

// Base returns a root Logger whose level is derived from the ZRP_TRACE /
// ZRP_DEBUG environment variables, defaulting to InfoLevel.
func Base(ctx context.Context) logger.Logger {
	l := logger.New(ctx)
	l.SetLevel(levelFromEnv())
	return l
}

func levelFromEnv() loglvl.Level {
	if truthy(os.Getenv("ZRP_TRACE")) {
		return loglvl.DebugLevel
	}
	if truthy(os.Getenv("ZRP_DEBUG")) {
		return loglvl.DebugLevel
	}
	return loglvl.InfoLevel
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// For clones the given logger and tags it with the component/value pair,
// the way a request-scoped logger is derived from a service-scoped one.
func For(l logger.Logger, component string, fields ...any) logger.Logger {
	c, err := l.Clone()
	if err != nil {
		c = l
	}

	f := c.GetFields()
	if f == nil {
		return c
	}

	f.Add("component", component)
	for i := 0; i+1 < len(fields); i += 2 {
		if k, ok := fields[i].(string); ok {
			f.Add(k, fields[i+1])
		}
	}
	c.SetFields(f)

	return c
}
