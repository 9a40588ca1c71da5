// Command geoquery-cli sends one query to a running geoquery server and
// prints the analysis. Exit codes: 0 success, 2 bad arguments, 3
// upstream unavailable, 4 area too large, 5 internal error.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"geoquery/pkg/model"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "geoquery server base URL")
	session := flag.String("session", "", "Session ID for document-grounded queries")
	timeout := flag.Duration("timeout", 5*time.Minute, "Request timeout")
	verbose := flag.Bool("v", false, "Print the evidence trail")
	flag.Parse()

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: geoquery-cli [flags] <query>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	resp, err := analyze(*addr, query, *session, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(3)
	}

	fmt.Println(resp.Analysis)
	if *verbose {
		fmt.Fprintln(os.Stderr)
		for _, m := range resp.Evidence {
			fmt.Fprintln(os.Stderr, m)
		}
	}

	os.Exit(exitCode(resp))
}

func analyze(addr, query, session string, timeout time.Duration) (*model.FinalResponse, error) {
	body, err := json.Marshal(map[string]string{"query": query, "session_id": session})
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: timeout}
	httpResp, err := client.Post(addr+"/api/analyze", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp model.FinalResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &resp, nil
}

func exitCode(resp *model.FinalResponse) int {
	if resp.Success {
		return 0
	}
	switch resp.ErrorType {
	case model.ErrValidation:
		return 2
	case model.ErrBackendUnavailable, model.ErrQuotaExceeded, model.ErrTimeout:
		return 3
	case model.ErrAreaTooLarge:
		return 4
	default:
		return 5
	}
}
