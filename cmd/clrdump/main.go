// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// clrdump is the external CLI driver named by spec.md §1/§6 (not part of
// the core clrvm package). It mirrors the teacher's cmd/pedumper: a
// Cobra root command with dump and version subcommands, plus an exec
// subcommand that drives the interpreter (§4.13 domain stack: cobra).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/saferwall/clrvm"
)

var (
	wantTables  bool
	wantStrings bool
	wantBlob    bool
	fastMode    bool
	stepLimit   uint64
)

func prettyPrint(v interface{}) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<marshal error: %s>", err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf, "", "\t"); err != nil {
		return string(buf)
	}
	return pretty.String()
}

// dump loads path and prints the requested slice of its metadata, the
// `clrdump dump <path> [--tables] [--strings] [--blob]` operation of
// SPEC_FULL.md §6.
func dump(cmd *cobra.Command, args []string) error {
	path := args[0]

	img, err := clrvm.NewFile(path, &clrvm.Options{Fast: fastMode})
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer img.Close()

	if err := img.Parse(); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	fmt.Println(prettyPrint(img.FileInfo))

	if wantTables {
		fmt.Println(prettyPrint(img.CLI.Tables))
	}
	if wantStrings && img.CLI.Strings != nil {
		fmt.Println(prettyPrint(img.CLI.Streams["#Strings"]))
	}
	if wantBlob && img.CLI.Blob != nil {
		fmt.Println(prettyPrint(img.CLI.Streams["#Blob"]))
	}

	sn, err := img.StrongName()
	if err != nil {
		log.Printf("strong name: %s", err)
	} else if sn.Present {
		fmt.Println(prettyPrint(sn))
	}

	return nil
}

// execMethod loads path, resolves Class and Method, decodes the
// caller-supplied i32 arguments, and runs the interpreter to completion —
// the `clrdump exec <path> <Class> <Method> [args...]` operation of
// SPEC_FULL.md §6. The class is matched against the TypeDef name only;
// its namespace is not consulted.
func execMethod(cmd *cobra.Command, args []string) error {
	path, className, methodName, rawArgs := args[0], args[1], args[2], args[3:]

	img, err := clrvm.Load(mustReadFile(path), &clrvm.Options{Fast: true, StepLimit: stepLimit})
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	defer img.Close()

	class, err := clrvm.OpenClass(img, className)
	if err != nil {
		return fmt.Errorf("open class %s: %w", className, err)
	}
	method, err := clrvm.OpenMethod(class, methodName)
	if err != nil {
		return fmt.Errorf("open method %s: %w", methodName, err)
	}

	callArgs := make([]clrvm.Data, len(rawArgs))
	for i, raw := range rawArgs {
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return fmt.Errorf("argument %d (%q): %w", i, raw, err)
		}
		callArgs[i] = clrvm.DataFromI32(int32(v))
	}

	result, err := clrvm.Execute(method, callArgs, stepLimit)
	if err != nil {
		return fmt.Errorf("executing %s.%s: %w", className, methodName, err)
	}
	if result == nil {
		fmt.Println("(void)")
		return nil
	}
	fmt.Println(result.I32())
	return nil
}

func mustReadFile(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("reading %s: %s", path, err)
	}
	return data
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "clrdump",
		Short: "A managed-assembly metadata dumper and bytecode runner",
		Long:  "Loads ECMA-335 managed assemblies, dumps their metadata, and runs their bytecode — built for inspection and experimentation",
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("clrdump 0.0.1")
		},
	}

	dumpCmd := &cobra.Command{
		Use:   "dump <path>",
		Short: "Dumps parsed metadata tables and heaps as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  dump,
	}
	dumpCmd.Flags().BoolVar(&wantTables, "tables", false, "dump decoded metadata tables")
	dumpCmd.Flags().BoolVar(&wantStrings, "strings", false, "dump the raw #Strings heap")
	dumpCmd.Flags().BoolVar(&wantBlob, "blob", false, "dump the raw #Blob heap")
	dumpCmd.Flags().BoolVar(&fastMode, "fast", false, "skip eager method body materialization")

	execCmd := &cobra.Command{
		Use:   "exec <path> <Class> <Method> [args...]",
		Short: "Loads an assembly and interprets a method body",
		Args:  cobra.MinimumNArgs(3),
		RunE:  execMethod,
	}
	execCmd.Flags().Uint64Var(&stepLimit, "step-limit", 0, "instruction budget; 0 means unbounded")

	rootCmd.AddCommand(versionCmd, dumpCmd, execCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
