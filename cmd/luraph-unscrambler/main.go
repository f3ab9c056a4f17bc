package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/Spencer-png/luraph-unscrambler/internal/decrypt"
	"github.com/Spencer-png/luraph-unscrambler/internal/orchestrator"
)

const appName = "luraph-unscrambler"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	out := fs.String("out", "", "output .luac path (default: input path with .luac suffix)")
	method := fs.String("method", "auto", "decryption method: auto, xor_v1, xor_v2, aes_cbc, aes_cbc_v2, luraph_custom")
	keyHex := fs.String("key", "", "decryption key, hex encoded")
	ivHex := fs.String("iv", "", "decryption IV, hex encoded (AES only)")
	version := fs.String("version", "", "luraph version hint, e.g. 11.5")
	interactive := fs.Bool("interactive", false, "step through each pipeline stage before continuing")
	debugJSON := fs.Bool("debug-json", false, "print Stats as stable-order JSON after a successful run")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	inputs := fs.Args()
	if len(inputs) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <source.lua>\n", appName)
		fs.PrintDefaults()
		return 2
	}
	inPath := inputs[0]

	src, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: cannot read %s: %v\n", appName, inPath, err)
		return 1
	}

	key, err := decodeHexFlag(*keyHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: bad -key: %v\n", appName, err)
		return 2
	}
	iv, err := decodeHexFlag(*ivHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: bad -iv: %v\n", appName, err)
		return 2
	}

	var ln *liner.State
	if *interactive {
		ln = liner.NewLiner()
		defer ln.Close()
		ln.SetCtrlCAborts(true)
	}

	opts := orchestrator.Options{
		Method:  decrypt.Method(*method),
		Key:     key,
		IV:      iv,
		Version: decrypt.Version(*version),
		Sink: func(ev orchestrator.ProgressEvent) {
			fmt.Fprintf(os.Stderr, "[%3.0f%%] %s\n", ev.Fraction*100, ev.Step)
			if ln != nil {
				if _, err := ln.Prompt("press enter to continue... "); err != nil {
					os.Exit(130)
				}
			}
		},
	}

	result, err := orchestrator.Deobfuscate(src, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}

	outPath := *out
	if outPath == "" {
		outPath = strings.TrimSuffix(inPath, filepath.Ext(inPath)) + ".luac"
	}
	if err := os.WriteFile(outPath, result.Bytecode, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "%s: cannot write %s: %v\n", appName, outPath, err)
		return 1
	}

	fmt.Printf("%s: wrote %s (%d bytes, %d handlers, %d instructions, %d constants decrypted)\n",
		appName, outPath, len(result.Bytecode), result.Stats.HandlersProcessed,
		result.Stats.InstructionsReconstructed, result.Stats.ConstantsDecrypted)
	for _, w := range result.Stats.Warnings {
		fmt.Fprintf(os.Stderr, "%s: warning: %s\n", appName, w)
	}

	if *debugJSON {
		j, err := result.DebugJSON()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: debug-json: %v\n", appName, err)
			return 1
		}
		fmt.Println(string(j))
	}

	return 0
}

func decodeHexFlag(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
