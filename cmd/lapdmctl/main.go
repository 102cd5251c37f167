// Command lapdmctl drives a LAPDm/LAPD datalink from the command line: it
// loads a channel profile (pkg/config), attaches an Entity to a PHY
// backend (virtual loopback for local testing, serial for a real
// TTY-attached modem), and exposes DL-SAP operations as subcommands.
//
// Grounded on the teacher's cmd/canopen, restructured onto
// github.com/spf13/cobra the way the richer multi-operation CLI surface
// here (establish/send/release/monitor, vs. canopen's single flag-parsed
// entrypoint) calls for.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kc1fsz/lapdm/pkg/codec"
	"github.com/kc1fsz/lapdm/pkg/config"
	"github.com/kc1fsz/lapdm/pkg/datalink"
	"github.com/kc1fsz/lapdm/pkg/entity"
	"github.com/kc1fsz/lapdm/pkg/phy"
	_ "github.com/kc1fsz/lapdm/pkg/phy/serial"
	_ "github.com/kc1fsz/lapdm/pkg/phy/virtual"
)

type station string

func (s station) ID() string { return string(s) }

var (
	profilePath   string
	interfaceType string
	channelSpec   string
	sapiFlag      uint8
	verbose       bool
)

func main() {
	root := &cobra.Command{
		Use:   "lapdmctl",
		Short: "drive a LAPDm/LAPD datalink from the command line",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVarP(&profilePath, "profile", "p", "", "channel profile INI path (required)")
	root.PersistentFlags().StringVarP(&interfaceType, "iface", "i", "virtual", "phy interface type: virtual or serial")
	root.PersistentFlags().StringVarP(&channelSpec, "channel", "c", "lapdmctl", "phy channel spec (virtual: broker name, serial: /dev/tty...:baud:framelen)")
	root.PersistentFlags().Uint8VarP(&sapiFlag, "sapi", "s", entity.SAPINormal, "SAPI to operate on")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.MarkPersistentFlagRequired("profile")

	root.AddCommand(establishCmd(), sendCmd(), releaseCmd(), monitorCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the profile, opens the configured phy.Bus, and attaches an
// Entity with one Datalink per SAPI in the profile.
func setup() (*entity.Entity, *datalink.Datalink, error) {
	profile, err := config.Load(profilePath)
	if err != nil {
		return nil, nil, err
	}
	bus, err := phy.NewBus(interfaceType, channelSpec)
	if err != nil {
		return nil, nil, fmt.Errorf("phy: %w", err)
	}
	if err := bus.Connect(); err != nil {
		return nil, nil, fmt.Errorf("phy connect: %w", err)
	}

	router := entity.StaticRouter{}
	ent := entity.New(station(fmt.Sprintf("node-%d", profile.NodeID)), bus, router)

	var wanted *datalink.Datalink
	for _, sp := range profile.SAPIs {
		dl, err := ent.Attach(sp.SAPI, sp.Channel, sp.Config, sp.N201, sp.Format, profile.AddressCodec())
		if err != nil {
			return nil, nil, err
		}
		router[sp.Channel] = codec.New(sp.Format, profile.AddressCodec(), sp.Config.VRange == 128, sp.N201)
		if sp.SAPI == sapiFlag {
			wanted = dl
		}
	}
	if wanted == nil {
		return nil, nil, fmt.Errorf("profile has no sapi%d section", sapiFlag)
	}

	pump := &rxPump{entity: ent}
	if err := bus.Subscribe(pump); err != nil {
		return nil, nil, fmt.Errorf("phy subscribe: %w", err)
	}
	return ent, wanted, nil
}

// rxPump adapts phy.FrameListener to Entity.Receive.
type rxPump struct {
	entity *entity.Entity
}

func (p *rxPump) Handle(f phy.Frame) {
	actions := p.entity.Receive(f.Channel, f.Data)
	for _, a := range actions {
		logAction(a)
	}
}

func logAction(a datalink.Action) {
	if a.Kind != datalink.ActionSurface {
		return
	}
	p := a.Primitive
	switch p.Kind {
	case datalink.PrimMDLError:
		logrus.Warnf("[MDL-ERROR] %s", p.Cause)
	default:
		logrus.Infof("[%s.%s] %d byte payload", p.Kind, p.Op, len(p.Payload))
	}
}

func establishCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "establish",
		Short: "send DL-EST.req and wait for confirmation or failure",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, dl, err := setup()
			if err != nil {
				return err
			}
			for _, a := range dl.EstablishRequest(nil) {
				logAction(a)
			}
			deadline := time.Now().Add(timeout)
			for dl.State() != datalink.StateMFEst && time.Now().Before(deadline) {
				for _, a := range dl.Elapse(50 * time.Millisecond) {
					logAction(a)
				}
				time.Sleep(50 * time.Millisecond)
			}
			if dl.State() != datalink.StateMFEst {
				return fmt.Errorf("establishment did not complete within %s", timeout)
			}
			fmt.Println("established")
			return nil
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "how long to wait for DL-EST.conf")
	return cmd
}

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [payload]",
		Short: "submit a DL-DATA.req with the given payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, dl, err := setup()
			if err != nil {
				return err
			}
			if dl.State() != datalink.StateMFEst && dl.State() != datalink.StateTimerRecov {
				return fmt.Errorf("datalink not established (state=%s); run establish first", dl.State())
			}
			for _, a := range dl.DataRequest([]byte(args[0])) {
				logAction(a)
			}
			return nil
		},
	}
	return cmd
}

func releaseCmd() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "release",
		Short: "send DL-REL.req",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, dl, err := setup()
			if err != nil {
				return err
			}
			mode := datalink.RelNormal
			if local {
				mode = datalink.RelLocal
			}
			for _, a := range dl.ReleaseRequest(mode) {
				logAction(a)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "local release (immediate, no DISC exchange)")
	return cmd
}

func monitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "run the engine's timer loop and log every indication until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, dl, err := setup()
			if err != nil {
				return err
			}
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			last := time.Now()
			for range ticker.C {
				now := time.Now()
				for _, a := range dl.Elapse(now.Sub(last)) {
					logAction(a)
				}
				last = now
			}
			return nil
		},
	}
	return cmd
}
