// Command tapbridged bridges a macOS virtual Ethernet tap interface to a
// single remote stream-socket client, emulating the client's view of a
// tap device over the network.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fuzziqersoftware/tapserver/pkg/codec"
	"github.com/fuzziqersoftware/tapserver/pkg/forwarder"
	"github.com/fuzziqersoftware/tapserver/pkg/logging"
	"github.com/fuzziqersoftware/tapserver/pkg/tap"
)

var (
	configPath                 string
	networkDeviceNumber        int
	ioDeviceNumber             int
	macAddress                 string
	ipAddress                  string
	mtu                        int
	metric                     int
	disableNUD                 bool
	enableRouterAdvertisements bool
	ifconfigCommand            string
	listenAddr                 string
	showData                   bool
	showSizeWarnings           bool
	useFramedProtocol          bool
)

var rootCmd = &cobra.Command{
	Use:           "tapbridged",
	Short:         "Bridges a macOS virtual Ethernet tap interface to a single remote client",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	defaults := tap.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&configPath, "config", "", "optional YAML file seeding defaults (overridden by explicit flags)")
	flags.IntVar(&networkDeviceNumber, "network-device-number", defaults.NetworkDeviceNumber, "net-side feth device number")
	flags.IntVar(&ioDeviceNumber, "io-device-number", defaults.IODeviceNumber, "io-side feth device number")
	flags.StringVar(&macAddress, "mac-address", formatMAC(defaults.MAC), "net-side MAC address")
	flags.StringVar(&ipAddress, "ip-address", formatIPv4(defaults.IPv4), "net-side IPv4 address")
	flags.IntVar(&mtu, "mtu", defaults.MTU, "net-side MTU")
	flags.IntVar(&metric, "metric", defaults.Metric, "net-side route metric")
	flags.BoolVar(&disableNUD, "disable-nud", false, "disable IPv6 neighbor unreachability detection")
	flags.BoolVar(&enableRouterAdvertisements, "enable-router-advertisements", false, "accept IPv6 router advertisements")
	flags.StringVar(&ifconfigCommand, "ifconfig-command", defaults.IfconfigCmd, "platform tool used to configure interfaces")
	flags.StringVar(&listenAddr, "listen", "", "PORT, ADDR:PORT, or /PATH to listen on")
	flags.BoolVar(&showData, "show-data", false, "hex-dump every forwarded frame to stderr")
	flags.BoolVar(&showSizeWarnings, "show-size-warnings", false, "hex-dump outbound frames whose computed size mismatches")
	flags.BoolVar(&useFramedProtocol, "use-framed-protocol", false, "use length-prefixed client framing")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tapbridged:", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var ae argError
	if asArgError(err, &ae) {
		return 2
	}
	return 3
}

func asArgError(err error, target *argError) bool {
	for err != nil {
		if ae, ok := err.(argError); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func run(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		fc, err := loadFileConfig(configPath)
		if err != nil {
			return argError{err: err}
		}
		applyFileConfig(fc, cmd.Flags().Changed)
	}

	log, err := logging.New("tapbridged", logging.INFO, "")
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Close()

	mac, err := parseMAC(macAddress)
	if err != nil {
		return err
	}
	ip, err := parseIPv4(ipAddress)
	if err != nil {
		return err
	}
	if listenAddr == "" {
		return newArgError("--listen is required")
	}

	cfg := tap.Config{
		NetworkDeviceNumber: networkDeviceNumber,
		IODeviceNumber:      ioDeviceNumber,
		MAC:                 mac,
		IPv4:                ip,
		MTU:                 mtu,
		Metric:              metric,
		NUDEnabled:          !disableNUD,
		RAEnabled:           enableRouterAdvertisements,
		IfconfigCmd:         ifconfigCommand,
	}

	ln, err := listen(listenAddr)
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Info("listening for client", logging.Fields{"addr": ln.Addr().String()})

	dev, err := tap.Open(cfg)
	if err != nil {
		return fmt.Errorf("open tap endpoint: %w", err)
	}
	defer dev.Close()
	log.Info("tap endpoint opened", logging.Fields{
		"net_device": dev.NetworkDeviceName(),
		"io_device":  dev.IODeviceName(),
	})

	var shutdown atomic.Bool
	installSignalHandler(&shutdown)

	conn, err := ln.Accept()
	if err != nil {
		return fmt.Errorf("accept client connection: %w", err)
	}
	defer conn.Close()
	log.Info("client connected", logging.Fields{"remote": conn.RemoteAddr().String()})

	mode := codec.SelfDelimited
	if useFramedProtocol {
		mode = codec.LengthPrefixed
	}

	err = forwarder.Run(dev, conn, &shutdown, forwarder.Options{
		Mode:             mode,
		ShowData:         showData,
		ShowSizeWarnings: showSizeWarnings,
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("forwarder loop: %w", err)
	}

	log.Info("shutting down", logging.Fields{})
	return nil
}

// installSignalHandler sets shutdown on INT, TERM, QUIT, or PIPE
// (spec.md §5 cancellation): the next poll wakeup in the forwarder loop
// observes it and exits.
func installSignalHandler(shutdown *atomic.Bool) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGPIPE)
	go func() {
		<-sigCh
		shutdown.Store(true)
	}()
}
