// Package tensorboard queries the scalar data endpoints of a running
// TensorBoard instance. Every operation fails soft: a transport error,
// a non-200 status or an unparseable payload is logged and surfaced to
// the caller as an empty result, never as an error. A momentarily
// unreachable dashboard must not take the bot down with it.
package tensorboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gidra39/tensorbot/types"

	"github.com/rs/zerolog/log"
)

type Client struct {
	baseURL string
	httpc   *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Runs returns the names of all runs known to the dashboard.
func (c *Client) Runs(ctx context.Context) []string {
	body, ok := c.get(ctx, "/data/runs", nil)
	if !ok {
		return nil
	}

	var runs []string
	if err := json.Unmarshal(body, &runs); err != nil {
		log.Error().Err(err).Msg("tensorboard: failed to parse run list")
		return nil
	}
	return runs
}

// Scalars returns the sorted scalar tag names recorded for the given run.
func (c *Client) Scalars(ctx context.Context, run string) []string {
	body, ok := c.get(ctx, "/data/plugin/scalars/tags", nil)
	if !ok {
		return nil
	}

	var tags map[string]map[string]json.RawMessage
	if err := json.Unmarshal(body, &tags); err != nil {
		log.Error().Err(err).Msg("tensorboard: failed to parse scalar tags")
		return nil
	}

	names := make([]string, 0, len(tags[run]))
	for name := range tags[run] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Series fetches the (walltime, iteration, value) history of one scalar.
// Rows that are not an array of exactly three numbers are skipped so a
// partially corrupt payload still yields the valid remainder.
func (c *Client) Series(ctx context.Context, run, tag string) types.Series {
	query := url.Values{}
	query.Set("run", run)
	query.Set("tag", tag)

	body, ok := c.get(ctx, "/data/plugin/scalars/scalars", query)
	if !ok {
		return nil
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		log.Error().Err(err).Str("tag", tag).Msg("tensorboard: failed to parse scalar payload")
		return nil
	}

	series := make(types.Series, 0, len(rows))
	for _, raw := range rows {
		var triple []float64
		if err := json.Unmarshal(raw, &triple); err != nil || len(triple) != 3 {
			log.Debug().Str("row", string(raw)).Msg("tensorboard: skipping malformed scalar row")
			continue
		}
		series = append(series, types.Sample{
			WallTime:  triple[0],
			Iteration: int(triple[1]),
			Value:     triple[2],
		})
	}
	return series
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, bool) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		log.Error().Err(err).Str("url", endpoint).Msg("tensorboard: failed to build request")
		return nil, false
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", endpoint).Msg("tensorboard: request failed")
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		log.Error().Int("status", resp.StatusCode).Str("url", endpoint).
			Str("body", string(bodyBytes)).Msg("tensorboard: unexpected status")
		return nil, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Str("url", endpoint).Msg("tensorboard: failed to read response body")
		return nil, false
	}
	return body, true
}
