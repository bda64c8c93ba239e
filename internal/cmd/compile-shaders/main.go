// Copyright 2023 the Vello Authors
// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Command compile-shaders preprocesses the WGSL kernels in a directory,
// resolving imports from its shared/ subdirectory, and writes the results to
// an output directory. With -check every result is also compiled with naga,
// so that invalid WGSL is caught before it reaches a device.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"
)

func main() {
	var (
		in      string
		out     string
		verbose bool
		check   bool
		defines string
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-v] [-check] -in <dir> -out <dir>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.StringVar(&in, "in", "", "Path to `directory` to process")
	flag.StringVar(&out, "out", "./out", "Path to output `directory`")
	flag.BoolVar(&verbose, "v", false, "Be verbose")
	flag.BoolVar(&check, "check", false, "Compile the output with naga")
	flag.StringVar(&defines, "D", "", "Comma-separated `list` of additional defines")
	flag.Parse()

	if len(flag.Args()) != 0 || in == "" {
		flag.Usage()
		os.Exit(2)
	}

	dief := func(f string, v ...any) {
		fmt.Fprintf(os.Stderr, f, v...)
		fmt.Fprintln(os.Stderr)
		os.Exit(1)
	}

	defaultDefines := map[string]struct{}{"full": {}}
	for _, d := range strings.Split(defines, ",") {
		if d = strings.TrimSpace(d); d != "" {
			defaultDefines[d] = struct{}{}
		}
	}

	p := Preprocessor{
		ImportDir: filepath.Join(in, "shared"),
		Verbose:   verbose,
		Defines:   defaultDefines,
		Log:       os.Stderr,
	}

	matches, err := filepath.Glob(filepath.Join(in, "*.wgsl"))
	if err != nil {
		panic(err)
	}
	if len(matches) == 0 {
		dief("No shaders in %s", in)
	}

	if err := os.MkdirAll(out, 0777); err != nil {
		dief("Couldn't create output directory: %s", err)
	}

	failed := false
	for i, m := range matches {
		if verbose {
			if i != 0 {
				fmt.Fprintln(os.Stderr)
			}
			fmt.Fprintf(os.Stderr, "compiling %s\n", filepath.Base(m))
		}
		src, err := os.ReadFile(m)
		if err != nil {
			dief("Couldn't read %q: %s", m, err)
		}
		src, err = p.Preprocess(src, m)
		if err != nil {
			dief("Couldn't preprocess source: %s", err)
		}
		if check {
			if err := validate(src); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %s\n", filepath.Base(m), err)
				failed = true
				continue
			}
		}
		if err := os.WriteFile(filepath.Join(out, filepath.Base(m)), src, 0666); err != nil {
			dief("Couldn't write output: %s", err)
		}
	}
	if failed {
		os.Exit(1)
	}
}

// validate compiles src to SPIR-V, discarding the result.
func validate(src []byte) error {
	spirv, err := naga.Compile(string(src))
	if err != nil {
		return err
	}
	if len(spirv) == 0 {
		return fmt.Errorf("naga produced no output")
	}
	return nil
}
