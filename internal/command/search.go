// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package command

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// maxResponseBody bounds what the CLI reads from the server.
const maxResponseBody = 4 << 20

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Query the search index over HTTP",
		Long: `Run a search query against a Pulse server and print the result page.

  pulsectl search hello
  pulsectl search alice --kind user --engine duckdb --limit 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			engine, _ := cmd.Flags().GetString("engine")
			kind, _ := cmd.Flags().GetString("kind")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			params := url.Values{}
			params.Set("q", args[0])
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				params.Set("offset", strconv.Itoa(offset))
			}
			if engine != "" {
				params.Set("engine", engine)
			}
			if kind != "" {
				params.Set("kind", kind)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			body, err := getJSON(ctx, strings.TrimRight(server, "/")+"/api/v1/search?"+params.Encode())
			if err != nil {
				return writeCommandError(cmd, err)
			}

			var out bytes.Buffer
			if err := json.Indent(&out, body, "", "  "); err != nil {
				return writeCommandError(cmd, fmt.Errorf("decode response: %w", err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.String())
			return nil
		},
	}

	cmd.Flags().String("server", envOr("PULSE_SERVER", "http://localhost:8080"), "Pulse server base URL (default $PULSE_SERVER)")
	cmd.Flags().Int("limit", 0, "page size (1-100, server default when 0)")
	cmd.Flags().Int("offset", 0, "page offset")
	cmd.Flags().String("engine", "", "search engine: badger or duckdb")
	cmd.Flags().String("kind", "", "document kind: post, user or module")
	cmd.Flags().Duration("timeout", 10*time.Second, "request timeout")

	return cmd
}

// errorEnvelope is the error part of a server response.
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// getJSON fetches target and returns the body of a 200 response. Error
// envelopes are turned into errors carrying the server's code and message.
func getJSON(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		return nil, fmt.Errorf("server returned %d %s: %s", resp.StatusCode, env.Error.Code, env.Error.Message)
	}
	return nil, fmt.Errorf("server returned %d", resp.StatusCode)
}
