package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// watch follows the live channel and reconnects with exponential backoff
// until ctx is done.
func watch(ctx context.Context, url string, p *printer, errOut io.Writer) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(policy, ctx)

	op := func() error {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return err
		}
		defer ws.Close()

		stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
		defer stop()

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return backoff.Permanent(ctx.Err())
				}
				return err
			}
			policy.Reset()
			if err := p.frame(data); err != nil {
				return backoff.Permanent(err)
			}
		}
	}

	notify := func(err error, wait time.Duration) {
		fmt.Fprintf(errOut, "live channel: %v; reconnecting in %s\n", err, wait.Round(time.Millisecond))
	}

	err := backoff.RetryNotify(op, b, notify)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *printer) frame(data []byte) error {
	if p.format == outputJSON {
		_, err := fmt.Fprintln(p.out, string(data))
		return err
	}

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		_, err = fmt.Fprintf(p.out, "? %s\n", data)
		return err
	}

	switch f.Type {
	case "hello":
		var h struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		}
		_ = json.Unmarshal(f.Data, &h)
		_, err := fmt.Fprintf(p.out, "connected as %s (%s)\n", h.Role, h.ID)
		return err
	case "telemetry":
		var r model.TelemetryRecord
		if err := json.Unmarshal(f.Data, &r); err != nil {
			return err
		}
		_, err := fmt.Fprintf(p.out, "%s  %-12s %-9s %s uptime=%s\n",
			r.ReceivedAt.Local().Format(time.TimeOnly), r.DeviceID, modeCell(r.Mode), position(&r), r.Uptime)
		return err
	case "command":
		var c model.Command
		if err := json.Unmarshal(f.Data, &c); err != nil {
			return err
		}
		_, err := fmt.Fprintf(p.out, "%s  command %s -> %s\n", c.IssuedAt.Local().Format(time.TimeOnly), c.Name, c.DeviceID)
		return err
	default:
		_, err := fmt.Fprintf(p.out, "%s %s\n", f.Type, f.Data)
		return err
	}
}
