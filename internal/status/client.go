package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
)

// Listen dials the status feed at addr (host:port) and delivers events on
// the returned channel. A snapshot on join is unpacked into individual
// events. The channel closes when the connection drops or ctx is
// cancelled.
func Listen(ctx context.Context, addr string) (<-chan Event, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial status feed: %w", err)
	}

	out := make(chan Event, 64)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var head struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &head); err != nil {
				continue
			}
			if head.Type == EventSnapshot {
				var snap Snapshot
				if err := json.Unmarshal(data, &snap); err != nil {
					continue
				}
				for _, ev := range snap.Events {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
				continue
			}
			var ev Event
			if err := json.Unmarshal(data, &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
