package cloudeval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://lichess.org/api/cloud-eval"

// LichessEvaluator queries the Lichess cloud evaluation API.
// Note: this requires network access and is rate limited, so it should
// always sit behind a cache.
type LichessEvaluator struct {
	client  *http.Client
	baseURL string
}

// NewLichessEvaluator creates a cloud evaluator against the public
// Lichess API.
func NewLichessEvaluator() *LichessEvaluator {
	return &LichessEvaluator{
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		baseURL: defaultBaseURL,
	}
}

// Lichess API response structure. Mate lines carry "mate" instead of
// "cp"; the API returns 404 for positions it has never evaluated.
type lichessResponse struct {
	Depth int `json:"depth"`
	PVs   []struct {
		Moves string `json:"moves"`
		CP    *int   `json:"cp"`
		Mate  *int   `json:"mate"`
	} `json:"pvs"`
}

func (le *LichessEvaluator) Lookup(ctx context.Context, fen string) Result {
	u := le.baseURL + "?" + url.Values{"fen": {fen}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Result{Found: false}
	}

	resp, err := le.client.Do(req)
	if err != nil {
		return Result{Found: false}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Found: false}
	}

	var result lichessResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{Found: false}
	}
	if len(result.PVs) == 0 {
		return Result{Found: false}
	}

	pv := result.PVs[0]
	out := Result{
		Found: true,
		Depth: result.Depth,
		PV:    strings.Fields(pv.Moves),
	}
	switch {
	case pv.CP != nil:
		out.ScoreCP = *pv.CP
	case pv.Mate != nil:
		out.Mate = *pv.Mate
	default:
		return Result{Found: false}
	}
	return out
}
