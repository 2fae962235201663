package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"keychat/internal/cryptographic/pki"
	"keychat/internal/model"
	"keychat/internal/protocol/wire"

	"github.com/gorilla/websocket"
)

func dialRelay(ctx context.Context, serverURL string, writeTimeout time.Duration) (*wire.Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", serverURL, err)
	}
	return wire.New(ws, writeTimeout), nil
}

// httpBase turns the relay's websocket url into its plain http root.
func httpBase(serverURL string) (*url.URL, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported relay url scheme %q", u.Scheme)
	}
	u.Path, u.RawQuery = "", ""
	return u, nil
}

// PeerStatus asks the relay what it knows about pk. It returns nil, nil when
// the relay has never seen the key.
func PeerStatus(ctx context.Context, serverURL string, pk pki.PublicKey) (*model.PeerStatus, error) {
	u, err := httpBase(serverURL)
	if err != nil {
		return nil, err
	}
	u.Path = "/peers/" + pk.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("peer lookup: %s", resp.Status)
	}

	var st model.PeerStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}
