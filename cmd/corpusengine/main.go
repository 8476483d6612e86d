// Copyright 2018-2020 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Command corpusengine is the core's own CLI entrypoint. It carries only
// the "serve" placeholder for the external Gateway wiring named in
// spec.md §1 — the wire protocol itself is out of scope. The migration and
// validation tools named in spec.md §9/§6 live as their own standalone
// binaries in cmd/corpusengine/migrate-structural and
// cmd/corpusengine/validate-tree, grounded in the teacher's
// pkg/favorite/sql/migrator pattern of a separate flag-based main rather
// than a dispatch subcommand.
package main

import (
	"flag"
	"fmt"
	"os"
)

// command pairs a flag.FlagSet with the Action/Usage/Description triple
// the command table below dispatches by name. Adapted from cmd/reva's
// command type, collapsed into this file since corpusengine has exactly
// one subcommand today and doesn't yet need its own file to hold it.
type command struct {
	*flag.FlagSet
	Name        string
	Action      func() error
	Usage       func() string
	Description func() string
}

// newCommand returns a command whose Action reports itself as
// unimplemented until the caller overwrites it — a command left at its
// zero value is a bug, not a silent no-op.
func newCommand(name string) *command {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cmd := &command{
		Name: name,
		Usage: func() string {
			return fmt.Sprintf("Usage: %s", name)
		},
		Action: func() error {
			return fmt.Errorf("command %q has no action wired", name)
		},
		Description: func() string {
			return "(no description)"
		},
		FlagSet: fs,
	}
	return cmd
}

var commands = []*command{
	serveCommand(),
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	name := os.Args[1]
	for _, c := range commands {
		if c.Name != name {
			continue
		}
		if err := c.Parse(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := c.Action(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "corpusengine: unknown command %q\n", name)
	usage()
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: corpusengine <command> [flags]")
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.Name, c.Description())
	}
}
