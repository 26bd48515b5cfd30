package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func adminURL(fs *flag.FlagSet) func(path string) string {
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	return func(path string) string {
		return strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1" + path
	}
}

// adminDo prints the response body and exits non-zero on a non-2xx status.
func adminDo(req *http.Request, timeout time.Duration) {
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	u := adminURL(fs)
	_ = fs.Parse(args)
	req, _ := http.NewRequest(http.MethodGet, u("/state"), nil)
	adminDo(req, 5*time.Second)
}

// snapshotCmd asks the running server to save a snapshot now.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	u := adminURL(fs)
	_ = fs.Parse(args)
	req, _ := http.NewRequest(http.MethodPost, u("/snapshot"), nil)
	adminDo(req, 10*time.Second)
}
