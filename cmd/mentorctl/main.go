// Command mentorctl drives a running mentorship server from the shell.
//
//	mentorctl login --email alice@example.com
//	mentorctl whoami
//	mentorctl can /mentor/dashboard
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Version is set at build time
var Version = "dev"

func main() {
	client := &Client{
		BaseURL: getEnv("MENTORSHIP_URL", "http://localhost:8080"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Out:     os.Stdout,
	}
	if err := newRootCmd(client).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
