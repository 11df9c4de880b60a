package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"hlpulse/internal/errs"
)

const (
	infoURL        = "https://api.hyperliquid.xyz/info"
	leaderboardURL = "https://stats-data.hyperliquid.xyz/Mainnet/leaderboard"

	httpFetchDeadline = 30 * time.Second
	backoffBase       = time.Second
	backoffCap        = 30 * time.Second
	maxAttempts       = 5
)

// RESTClient is the outbound-only Hyperliquid /info + leaderboard client (§6). It
// reproduces the request/response shapes bit-for-bit; the URLs above are given facts,
// not configuration, matching "implementers reproduce them bit-for-bit".
type RESTClient struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// NewRESTClient builds a client with the §5 HTTP fetch deadline as its default timeout.
func NewRESTClient(log zerolog.Logger) *RESTClient {
	return &RESTClient{
		httpClient: &http.Client{Timeout: httpFetchDeadline},
		log:        log.With().Str("component", "venue.rest").Logger(),
	}
}

// FetchCandleSnapshot issues type=candleSnapshot and decodes the Candle array.
func (c *RESTClient) FetchCandleSnapshot(ctx context.Context, coin, interval string, startMs, endMs int64) ([]Candle, error) {
	body := InfoRequest{
		Type: "candleSnapshot",
		Req: CandleSnapshotReq{
			Coin:      coin,
			Interval:  interval,
			StartTime: startMs,
			EndTime:   endMs,
		},
	}

	var candles []Candle
	if err := c.postWithRetry(ctx, infoURL, body, &candles); err != nil {
		return nil, err
	}
	return candles, nil
}

// FetchMeta issues type=metaAndAssetCtxs and decodes the universe.
func (c *RESTClient) FetchMeta(ctx context.Context) (*Meta, error) {
	body := InfoRequest{Type: "metaAndAssetCtxs"}

	var raw []json.RawMessage
	if err := c.postWithRetry(ctx, infoURL, body, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &Meta{}, nil
	}
	var meta Meta
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return nil, &errs.ProtocolError{Component: "venue.rest", Err: err}
	}
	return &meta, nil
}

// FetchLeaderboard fetches the CloudFront leaderboard JSON.
func (c *RESTClient) FetchLeaderboard(ctx context.Context) (*LeaderboardResponse, error) {
	var resp LeaderboardResponse
	if err := c.getWithRetry(ctx, leaderboardURL, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RESTClient) postWithRetry(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &errs.ProtocolError{Component: "venue.rest", Err: err}
	}

	return c.withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return &errs.TransportError{Component: "venue.rest", Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		return c.doDecode(req, out)
	})
}

func (c *RESTClient) getWithRetry(ctx context.Context, url string, out interface{}) error {
	return c.withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return &errs.TransportError{Component: "venue.rest", Err: err}
		}
		return c.doDecode(req, out)
	})
}

func (c *RESTClient) doDecode(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errs.TransportError{Component: "venue.rest", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &errs.AuthError{Component: "venue.rest", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return &errs.TransportError{Component: "venue.rest", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &errs.ProtocolError{Component: "venue.rest", Err: err}
	}
	return nil
}

// withRetry applies the shared capped-exponential-backoff-with-full-jitter policy
// (base 1s, cap 30s, max 5 attempts) from §7 to transient TransportError.
// AuthError and ProtocolError are not retried here; they propagate immediately.
func (c *RESTClient) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := backoffDelay(attempt)
			c.log.Warn().Err(lastErr).Int("attempt", attempt).Dur("wait", wait).Msg("retrying venue request")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var te *errs.TransportError
		if !errors.As(err, &te) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// backoffDelay implements base 1s, cap 30s, full jitter: delay = rand(0, min(cap, base*2^attempt)).
func backoffDelay(attempt int) time.Duration {
	exp := float64(backoffBase) * math.Pow(2, float64(attempt))
	capped := math.Min(exp, float64(backoffCap))
	return time.Duration(rand.Int63n(int64(capped) + 1))
}
