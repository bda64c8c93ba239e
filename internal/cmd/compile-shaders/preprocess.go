// Copyright 2023 the Vello Authors
// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Preprocessor expands #import, #ifdef, #ifndef, #else and #endif directives
// in WGSL sources. Top-level "let" declarations are rewritten to "const".
type Preprocessor struct {
	ImportDir string
	Verbose   bool
	Defines   map[string]struct{}
	// Log receives debug output if Verbose is set.
	Log io.Writer

	imports map[string][]byte
}

func (p *Preprocessor) debugf(f string, v ...any) {
	if !p.Verbose {
		return
	}
	fmt.Fprintf(p.Log, f, v...)
	fmt.Fprintln(p.Log)
}

func (p *Preprocessor) getImport(name string) ([]byte, error) {
	p.debugf("substituting import %q", name)
	if src, ok := p.imports[name]; ok {
		return src, nil
	}
	p.debugf("loading import %q from disk", name)
	src, err := os.ReadFile(filepath.Join(p.ImportDir, name+".wgsl"))
	if err != nil {
		return nil, err
	}
	if p.imports == nil {
		p.imports = make(map[string][]byte)
	}
	p.imports[name] = src
	return src, nil
}

func (p *Preprocessor) Preprocess(source []byte, name string) ([]byte, error) {
	var out []byte
	nl := []byte("\n")
	space := []byte(" ")
	dirMarker := []byte("#")
	commentMarker := []byte("//")
	let := []byte("let ")
	var stack []stackItem
	lineNo := 0
	location := func() string {
		return fmt.Sprintf("%s:%d", name, lineNo)
	}
	errorf := func(f string, v ...any) error {
		v = append(v[:len(v):len(v)], location())
		return fmt.Errorf(f+" (at %s)", v...)
	}
	error := func(f string) error {
		return errorf("%s", f)
	}
allLines:
	for len(source) > 0 {
		lineNo++
		var line []byte
		line, source, _ = bytes.Cut(source, nl)

		for len(line) > 0 {
			hashIdx := bytes.IndexByte(line, '#')
			commentIdx := bytes.Index(line, commentMarker)

			if hashIdx == -1 || (commentIdx != -1 && commentIdx < hashIdx) {
				// No directives that aren't commented
				break
			}

			end := bytes.IndexByte(line[hashIdx+1:], ' ')
			if end == -1 {
				end = len(line)
			} else {
				end += hashIdx + 1
			}

			directive := string(line[hashIdx+1 : end])
			atStart := bytes.HasPrefix(bytes.TrimSpace(line), dirMarker)
			arg := bytes.TrimSpace(line[end:])

			p.debugf("processing directive %q", directive)

			switch directive {
			case "ifdef", "ifndef", "else", "endif":
				if !atStart {
					return nil, errorf(
						"%q directives must be the first non-whitespace item on their line",
						directive)
				}
			}

			switch directive {
			case "ifdef", "ifndef":
				_, exists := p.Defines[string(arg)]
				active := (directive == "ifdef") == exists
				stack = append(stack, stackItem{
					active:     active,
					elsePassed: false,
				})
				if active {
					if directive == "ifdef" {
						p.debugf("current branch is active (%s is defined)", string(arg))
					} else {
						p.debugf("current branch is active (%s is not defined)", string(arg))
					}
				} else {
					if directive == "ifdef" {
						p.debugf("current branch is not active (%s is not defined)", string(arg))
					} else {
						p.debugf("current branch is not active (%s is defined)", string(arg))
					}
				}
				continue allLines

			case "else":
				// XXX shouldn't we complain about an else without a matching stack entry?
				if len(stack) > 0 {
					item := &stack[len(stack)-1]
					if item.elsePassed {
						return nil, error("second else for same ifdef/ifndef")
					} else {
						item.elsePassed = true
						item.active = !item.active
					}
					if item.active {
						p.debugf("current branch is active")
					} else {
						p.debugf("current branch is not active")
					}
				}
				if len(arg) != 0 {
					return nil, error("#else directive doesn't accept arguments")
				}
				continue allLines

			case "endif":
				if len(stack) == 0 {
					return nil, error("mismatched endif")
				}
				stack = stack[:len(stack)-1]
				// XXX if endif allows a trailing comment, then shouldn't all directives?
				if len(arg) != 0 && !bytes.HasPrefix(arg, commentMarker) {
					return nil, error("#endif directive doesn't accept arguments")
				}
				continue allLines

			case "import":
				out = append(out, line[:hashIdx]...)
				if len(arg) == 0 {
					return nil, error("#import needs an argument")
				}
				var importName []byte
				importName, line, _ = bytes.Cut(arg, space)
				importSrc, err := p.getImport(string(importName))
				if err != nil {
					return nil, errorf("couldn't import %q: %w", importName, err)
				}
				if active(stack) {
					imported, err := p.Preprocess(importSrc, "#include "+string(importName))
					if err != nil {
						return nil, err
					}
					out = append(out, imported...)
				}

			default:
				return nil, errorf("unknown preprocessor directive %q", directive)
			}
		}

		if active(stack) {
			if bytes.HasPrefix(line, let) {
				out = append(out, "const"...)
				out = append(out, line[3:]...)
			} else {
				out = append(out, line...)
			}
			out = append(out, '\n')
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("%s: %d unterminated #ifdef/#ifndef", name, len(stack))
	}
	return out, nil
}

type stackItem struct {
	active     bool
	elsePassed bool
}

func active(stack []stackItem) bool {
	for _, item := range stack {
		if !item.active {
			return false
		}
	}
	return true
}

