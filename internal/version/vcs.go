// Copyright 2022 The go-ethereum Authors
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

package version

import (
	"runtime/debug"
	"time"
)

// Layouts of the commit time as the go tool embeds it and as it is printed.
const (
	buildTimeLayout = "2006-01-02T15:04:05Z"
	dateLayout      = "20060102"
)

// Set by the linker, e.g.
//
//	go build -ldflags "-X github.com/sunyihoo/go-wsrpc/internal/version.gitCommit=$(git rev-parse HEAD)"
var gitCommit, gitDate string

// VCSInfo is the repository state the binary was built from.
type VCSInfo struct {
	Commit string
	Date   string // YYYYMMDD
	Dirty  bool
}

// VCS returns the linker-provided commit, falling back to the VCS stamp of
// the build when this module is the main module.
func VCS() (VCSInfo, bool) {
	if gitCommit != "" {
		return VCSInfo{Commit: gitCommit, Date: gitDate}, true
	}
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Path != ourPath {
		return VCSInfo{}, false
	}
	return buildInfoVCS(info)
}

func buildInfoVCS(info *debug.BuildInfo) (VCSInfo, bool) {
	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	vcs := VCSInfo{
		Commit: settings["vcs.revision"],
		Dirty:  settings["vcs.modified"] == "true",
	}
	if t, err := time.Parse(buildTimeLayout, settings["vcs.time"]); err == nil {
		vcs.Date = t.Format(dateLayout)
	}
	return vcs, vcs.Commit != "" && vcs.Date != ""
}
