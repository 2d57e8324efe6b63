// brc20s-cli is a command-line client for querying a running brc20sd
// node's read API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	apiURL := "http://127.0.0.1:8080"
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--api" && len(args) > 1:
			apiURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--api="):
			apiURL = args[0][len("--api="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	cmd, cmdArgs := args[0], args[1:]

	switch cmd {
	case "status":
		get(client, apiURL, "/status")
	case "inscription":
		requireArgs(cmdArgs, 1, "inscription <id>")
		get(client, apiURL, "/inscription/"+url.PathEscape(cmdArgs[0]))
	case "sat":
		requireArgs(cmdArgs, 1, "sat <number>")
		get(client, apiURL, "/sat/"+cmdArgs[0])
	case "tick":
		requireArgs(cmdArgs, 1, "tick <name> [owner_script_hex]")
		path := "/tick/" + url.PathEscape(cmdArgs[0])
		if len(cmdArgs) > 1 {
			path += "/" + cmdArgs[1]
		}
		get(client, apiURL, path)
	case "brc20s-tick":
		requireArgs(cmdArgs, 1, "brc20s-tick <tick_id>")
		get(client, apiURL, "/brc20s/tick/"+cmdArgs[0])
	case "brc20s-pool":
		requireArgs(cmdArgs, 1, "brc20s-pool <pool_id>")
		get(client, apiURL, "/brc20s/pool/"+cmdArgs[0])
	case "receipts":
		requireArgs(cmdArgs, 1, "receipts <txid>")
		get(client, apiURL, "/tx/"+cmdArgs[0]+"/receipts")
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "Usage: brc20s-cli %s\n", usage)
		os.Exit(1)
	}
}

// get issues a GET against the node's read API and pretty-prints the
// response body, whether it was a success or an error payload.
func get(client *http.Client, apiURL, path string) {
	resp, err := client.Get(strings.TrimSuffix(apiURL, "/") + path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading response: %v\n", err)
		os.Exit(1)
	}

	var pretty interface{}
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		os.Exit(boolToExit(resp.StatusCode >= 400))
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
	os.Exit(boolToExit(resp.StatusCode >= 400))
}

func boolToExit(failed bool) int {
	if failed {
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: brc20s-cli [--api <url>] <command> [args]

Global flags:
  --api <url>   Read API base URL (default: http://127.0.0.1:8080)

Commands:
  status                          Show indexer tip and counters
  inscription <id>                Show an inscription's entry and current location
  sat <number>                    Show a sat's current location
  tick <name> [owner]             Show a BRC-20 tick's deploy info, or a script's balance
  brc20s-tick <tick_id>           Show a BRC-20-S tick's deploy info
  brc20s-pool <pool_id>           Show a BRC-20-S pool's parameters and accumulators
  receipts <txid>                 Show every receipt a transaction produced
  help                             Show this help message
`)
}
