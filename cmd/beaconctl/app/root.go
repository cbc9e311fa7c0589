// Package app implements beaconctl, the operator CLI of the beacon hub.
package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
)

type rootOptions struct {
	server  string
	output  string
	timeout time.Duration
}

// NewCommand builds the beaconctl command tree. The server defaults to
// $BEACONCTL_SERVER.
func NewCommand() *cobra.Command {
	o := &rootOptions{}
	v := viper.New()
	v.SetEnvPrefix("BEACONCTL")
	v.AutomaticEnv()
	v.SetDefault("server", "http://localhost:8080")

	cmd := &cobra.Command{
		Use:          "beaconctl",
		Short:        "Inspect and operate a beacon hub",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("server") {
				o.server = v.GetString("server")
			}
			if o.output != outputTable && o.output != outputJSON {
				return fmt.Errorf("unknown output format %q", o.output)
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&o.server, "server", "s", "http://localhost:8080", "Base URL of the hub.")
	pf.StringVarP(&o.output, "output", "o", outputTable, "Output format: table or json.")
	pf.DurationVar(&o.timeout, "timeout", 10*time.Second, "Request timeout.")

	cmd.AddCommand(
		newDevicesCommand(o),
		newEventsCommand(o),
		newSendCommand(o),
		newAckCommand(o),
		newDeleteCommand(o),
		newWatchCommand(o),
	)
	return cmd
}

func (o *rootOptions) client() (*Client, error) {
	return NewClient(o.server, o.timeout)
}

func (o *rootOptions) printer(cmd *cobra.Command) *printer {
	return &printer{out: cmd.OutOrStdout(), format: o.output, now: time.Now}
}

func newDevicesCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List devices with their latest telemetry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			devices, err := c.Devices(cmd.Context())
			if err != nil {
				return err
			}
			return o.printer(cmd).devices(devices)
		},
	}
}

func newEventsCommand(o *rootOptions) *cobra.Command {
	var device string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded events, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			events, err := c.Events(cmd.Context(), device)
			if err != nil {
				return err
			}
			return o.printer(cmd).events(events)
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "", "Only events of this device.")
	return cmd
}

func newSendCommand(o *rootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:     "send PAYLOAD",
		Short:   "Submit a raw telemetry payload",
		Example: `  beaconctl send 'DEV1|EMERGENCY|14.6|120.9|0km/h|7sat|120,-80,9.5'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			ack, err := c.Send(cmd.Context(), model.Submission{Status: status, Payload: args[0]})
			if err != nil {
				return err
			}
			return o.printer(cmd).ack(ack)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Top-level status sent along with the payload.")
	return cmd
}

func newAckCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ack DEVICE",
		Short: "Relay an acknowledgement to a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			res, err := c.Acknowledge(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return o.printer(cmd).relayed(res)
		},
	}
}

func newDeleteCommand(o *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "delete [ID]",
		Short: "Delete one recorded event, or all of them with --all",
		Args: func(_ *cobra.Command, args []string) error {
			switch {
			case all && len(args) > 0:
				return errors.New("give an event id or --all, not both")
			case !all && len(args) != 1:
				return errors.New("an event id is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			if all {
				if err := c.DeleteAll(cmd.Context()); err != nil {
					return err
				}
				return o.printer(cmd).message("all events deleted")
			}
			if err := c.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			return o.printer(cmd).message("event " + args[0] + " deleted")
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Delete every recorded event.")
	return cmd
}

func newWatchCommand(o *rootOptions) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := model.Role(strings.ToLower(role))
			if r != model.RoleViewer && r != model.RoleReceiver {
				return fmt.Errorf("unknown role %q", role)
			}
			c, err := o.client()
			if err != nil {
				return err
			}
			return watch(cmd.Context(), c.LiveURL(r), o.printer(cmd), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&role, "role", string(model.RoleViewer), "Connect as viewer or receiver.")
	return cmd
}
