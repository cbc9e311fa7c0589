package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

type printer struct {
	out    io.Writer
	format string
	now    func() time.Time
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) devices(devices []Device) error {
	if p.format == outputJSON {
		return p.json(devices)
	}

	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("DEVICE", "MODE", "POSITION", "UPTIME", "RSSI", "SNR", "SEEN")
	for _, d := range devices {
		r := d.Latest
		if r == nil {
			table.AddRow(d.DeviceID, "-", "-", "-", "-", "-", "-")
			continue
		}
		table.AddRow(d.DeviceID, modeCell(r.Mode), position(r), r.Uptime, optional(r.RSSI), optional(r.SNR), p.ago(r.ReceivedAt))
	}
	_, err := fmt.Fprintln(p.out, table)
	return err
}

func (p *printer) events(events []*model.Event) error {
	if p.format == outputJSON {
		return p.json(events)
	}

	table := uitable.New()
	table.MaxColWidth = 48
	table.AddRow("ID", "DEVICE", "MODE", "POSITION", "RECEIVED")
	for _, e := range events {
		table.AddRow(e.ID, e.Record.DeviceID, modeCell(e.Record.Mode), position(&e.Record), p.ago(e.Record.ReceivedAt))
	}
	_, err := fmt.Fprintln(p.out, table)
	return err
}

func (p *printer) ack(ack *model.Ack) error {
	if p.format == outputJSON {
		return p.json(ack)
	}
	line := fmt.Sprintf("%s %s: %s", ack.DeviceID, modeCell(ack.Mode), ack.Message)
	if ack.EventID != "" {
		line += " (event " + ack.EventID + ")"
	}
	_, err := fmt.Fprintln(p.out, line)
	return err
}

func (p *printer) relayed(res *AckResult) error {
	if p.format == outputJSON {
		return p.json(res)
	}
	_, err := fmt.Fprintf(p.out, "ACK for %s delivered to %d receiver(s)\n", res.DeviceID, res.Delivered)
	return err
}

func (p *printer) message(msg string) error {
	if p.format == outputJSON {
		return p.json(map[string]any{"success": true, "message": msg})
	}
	_, err := fmt.Fprintln(p.out, msg)
	return err
}

func (p *printer) ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, p.now(), "ago", "from now")
}

func modeCell(m model.Mode) string {
	switch m {
	case model.ModeEmergency:
		return color.New(color.FgRed, color.Bold).Sprint(m)
	case model.ModeNormal:
		return color.GreenString(string(m))
	case model.ModeStatus:
		return color.CyanString(string(m))
	case "":
		return "-"
	default:
		return string(m)
	}
}

func position(r *model.TelemetryRecord) string {
	if !r.HasPosition() {
		return "-"
	}
	return strconv.FormatFloat(*r.Latitude, 'f', 5, 64) + "," + strconv.FormatFloat(*r.Longitude, 'f', 5, 64)
}

func optional(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
