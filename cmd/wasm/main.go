//go:build js && wasm

// Command wasm exposes the lane race engine to the browser via WebAssembly.
// After loading, it registers a global JavaScript function:
//
//	runRace(jsonString) -> jsonString
//
// The input and output are a JSON-encoded RaceInput and Result, the same
// contract the CLI accepts with -format json.
package main

import (
	"syscall/js"

	"github.com/cxd309/lane-race/internal/engine"
)

func main() {
	js.Global().Set("runRace", js.FuncOf(runRace))
	select {} // keep the WASM module alive until the page is closed
}

func runRace(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return map[string]any{"error": "no race input provided"}
	}

	result, err := engine.RunJSON(args[0].String())
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return result
}
