// Copyright 2017 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package log

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var errVmoduleSyntax = errors.New("expect comma-separated list of filename=N")

// GlogHandler filters records by a global verbosity and by per-file
// overrides, in the manner of Google's glog.
type GlogHandler struct {
	origin slog.Handler

	level    atomic.Int32
	override atomic.Bool // set when vmodule rules exist

	// The rules and the per call site cache are shared with handlers
	// derived by WithAttrs.
	rules *vmodule
}

type vmodule struct {
	mu    sync.RWMutex
	rules []vmoduleRule
	sites map[uintptr]slog.Level
}

type vmoduleRule struct {
	file  *regexp.Regexp
	level slog.Level
}

// NewGlogHandler wraps h with verbosity filtering.
func NewGlogHandler(h slog.Handler) *GlogHandler {
	return &GlogHandler{origin: h, rules: new(vmodule)}
}

// Verbosity sets the global verbosity ceiling.
func (h *GlogHandler) Verbosity(level slog.Level) {
	h.level.Store(int32(level))
}

// Vmodule sets per-file verbosity as a comma-separated list of pattern=N,
// where N is a numeric verbosity (0=crit ... 5=trace) and pattern is a file
// name, a package path suffix, or a path containing "*" components:
//
//	client.go=5   all files named client.go
//	rpc=4         all files of packages ending in "rpc"
//	rpc/*=5       everything below a path containing "rpc"
func (h *GlogHandler) Vmodule(ruleset string) error {
	rules, err := parseVmodule(ruleset)
	if err != nil {
		return err
	}
	h.rules.mu.Lock()
	h.rules.rules = rules
	h.rules.sites = make(map[uintptr]slog.Level)
	h.rules.mu.Unlock()

	h.override.Store(len(rules) > 0)
	return nil
}

func parseVmodule(ruleset string) ([]vmoduleRule, error) {
	var rules []vmoduleRule
	for _, rule := range strings.Split(ruleset, ",") {
		if rule == "" {
			continue
		}
		file, num, ok := strings.Cut(rule, "=")
		file, num = strings.TrimSpace(file), strings.TrimSpace(num)
		if !ok || file == "" || num == "" {
			return nil, errVmoduleSyntax
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return nil, errVmoduleSyntax
		}
		level := FromLegacyLevel(n)
		if level == LevelCrit {
			continue // crit is always logged
		}
		expr := ".*"
		for _, comp := range strings.Split(file, "/") {
			switch comp {
			case "*":
				expr += "(/.*)?"
			case "":
			default:
				expr += "/" + regexp.QuoteMeta(comp)
			}
		}
		if !strings.HasSuffix(file, ".go") {
			expr += `/[^/]+\.go`
		}
		rules = append(rules, vmoduleRule{regexp.MustCompile(expr + "$"), level})
	}
	return rules, nil
}

// siteLevel returns the verbosity for the call site pc. The last matching rule
// wins. Sites no rule matches only log crit.
func (v *vmodule) siteLevel(pc uintptr) slog.Level {
	v.mu.RLock()
	lvl, ok := v.sites[pc]
	v.mu.RUnlock()
	if ok {
		return lvl
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()

	v.mu.Lock()
	defer v.mu.Unlock()
	lvl = LevelCrit + 1
	for _, rule := range v.rules {
		if rule.file.MatchString("+" + frame.File) {
			lvl = rule.level
		}
	}
	if v.sites != nil {
		v.sites[pc] = lvl
	}
	return lvl
}

func (h *GlogHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.override.Load() || slog.Level(h.level.Load()) <= lvl
}

func (h *GlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	res := &GlogHandler{origin: h.origin.WithAttrs(attrs), rules: h.rules}
	res.level.Store(h.level.Load())
	res.override.Store(h.override.Load())
	return res
}

// WithGroup is not supported, attributes are always written flat.
func (h *GlogHandler) WithGroup(name string) slog.Handler {
	return h
}

func (h *GlogHandler) Handle(ctx context.Context, r slog.Record) error {
	if slog.Level(h.level.Load()) <= r.Level || h.rules.siteLevel(r.PC) <= r.Level {
		return h.origin.Handle(ctx, r)
	}
	return nil
}
