// calc-engine is the standalone calculator: it runs the preparation and
// pure compute stages on an inline request, with no database, broker, or
// network, and prints the result JSON. It is the fastest way to check
// what a request would price at.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/compute"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/metrics"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/prepare"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

func main() {
	dataStr := flag.String("data", "", "JSON request payload")
	file := flag.String("file", "", "Path to a JSON request file")
	pretty := flag.Bool("pretty", false, "Indent the result JSON")
	flag.Parse()

	raw, err := readRequest(*dataStr, *file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var req models.CalculateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshaling request: %v\n", err)
		os.Exit(1)
	}

	stage := prepare.NewStage(nil, metrics.NewRecorder(nil), zap.NewNop(), prepare.Config{})
	frozen, err := stage.Prepare(context.Background(), &req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Preparation failed: %v\n", err)
		os.Exit(1)
	}

	result, err := compute.Compute(frozen, compute.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compute failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
		os.Exit(1)
	}
}

func readRequest(dataStr, file string) ([]byte, error) {
	switch {
	case dataStr != "":
		return []byte(dataStr), nil
	case file != "":
		return os.ReadFile(file)
	default:
		return nil, fmt.Errorf("no request provided, use -data or -file")
	}
}
