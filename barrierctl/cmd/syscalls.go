// Copyright 2026 The gVisor Authors.
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

package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/google/subcommands"
	"gvisor.dev/barrier/pkg/kernel"
	"gvisor.dev/barrier/pkg/syscalls/linux"
)

// Syscalls implements subcommands.Command for the "syscalls" command.
type Syscalls struct {
	output string
}

// SyscallDoc represents a single item of syscall documentation.
type SyscallDoc struct {
	Name   string  `json:"name"`
	Number uintptr `json:"number"`
}

type outputFunc func(io.Writer, []SyscallDoc) error

// outputMap maps output type names to output functions.
var outputMap = map[string]outputFunc{
	"table": outputTable,
	"json":  outputJSON,
}

// Name implements subcommands.Command.Name.
func (*Syscalls) Name() string {
	return "syscalls"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Syscalls) Synopsis() string {
	return "Print the barrier syscalls and their numbers."
}

// Usage implements subcommands.Command.Usage.
func (*Syscalls) Usage() string {
	return `syscalls [options] [name...] - Print the barrier syscalls and their numbers.

If names are given, only those syscalls are printed.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Syscalls) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.output, "o", "table", "Output format (table, json).")
}

// Execute implements subcommands.Command.Execute.
func (s *Syscalls) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	out, ok := outputMap[s.output]
	if !ok {
		Fatalf("Unsupported output format %q", s.output)
	}
	docs, err := selectSyscallDocs(linux.NewTable(), f.Args())
	if err != nil {
		Fatalf("%v", err)
	}
	if err := out(os.Stdout, docs); err != nil {
		Fatalf("Error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// syscallDocs returns the entries of table sorted by number.
func syscallDocs(table *kernel.SyscallTable) []SyscallDoc {
	docs := make([]SyscallDoc, 0, len(table.Table))
	for num := range table.Table {
		docs = append(docs, SyscallDoc{Name: table.LookupName(num), Number: num})
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Number < docs[j].Number
	})
	return docs
}

// selectSyscallDocs returns the entries of table named in names, in order, or
// all of them sorted by number if names is empty.
func selectSyscallDocs(table *kernel.SyscallTable, names []string) ([]SyscallDoc, error) {
	if len(names) == 0 {
		return syscallDocs(table), nil
	}
	docs := make([]SyscallDoc, 0, len(names))
	for _, name := range names {
		num, err := table.LookupNo(name)
		if err != nil {
			return nil, err
		}
		docs = append(docs, SyscallDoc{Name: name, Number: num})
	}
	return docs, nil
}

// outputTable writes the syscall docs as a table.
func outputTable(w io.Writer, docs []SyscallDoc) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NUM\tNAME")
	for _, d := range docs {
		fmt.Fprintf(tw, "%d\t%s\n", d.Number, d.Name)
	}
	return tw.Flush()
}

// outputJSON writes the syscall docs as JSON.
func outputJSON(w io.Writer, docs []SyscallDoc) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(docs)
}
