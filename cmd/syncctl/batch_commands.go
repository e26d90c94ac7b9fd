package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func clientFrom(c *cli.Context) *apiClient {
	return &apiClient{
		base:  strings.TrimRight(c.String("server"), "/"),
		token: c.String("token"),
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends the request and returns the body. 207 is a normal answer for
// batches with conflicts.
func (a *apiClient) do(c *cli.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(c.Context, method, a.base+path, body)
	if err != nil {
		return nil, err
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s %s: %d %s: %s", method, path, resp.StatusCode, apiErr.Code, apiErr.Error)
		}
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return raw, nil
}

func printJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = w.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func batchSubmitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Submit a batch JSON file ({deviceId, festivalId, transactions})",
		ArgsUsage: "FILE",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("batch file is required")
			}
			var in io.Reader
			if name := c.Args().Get(0); name == "-" {
				in = os.Stdin
			} else {
				f, err := os.Open(name)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			raw, err := clientFrom(c).do(c, http.MethodPost, "/sync/batch", in)
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, raw)
		},
	}
}

func batchGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a batch with its per-transaction outcomes",
		ArgsUsage: "BATCH_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("batch id is required")
			}
			raw, err := clientFrom(c).do(c, http.MethodGet, "/sync/batch/"+url.PathEscape(c.Args().Get(0)), nil)
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, raw)
		},
	}
}

func batchPendingCommand() *cli.Command {
	return &cli.Command{
		Name:  "pending",
		Usage: "List a device's pending and processing batches",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "device id", Required: true},
		},
		Action: func(c *cli.Context) error {
			q := url.Values{"device_id": {c.String("device")}}
			raw, err := clientFrom(c).do(c, http.MethodGet, "/sync/pending?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, raw)
		},
	}
}
