package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	canif "github.com/samsamfire/gocanif"
	"github.com/samsamfire/gocanif/pkg/can"
	_ "github.com/samsamfire/gocanif/pkg/can/socketcan"
	"github.com/samsamfire/gocanif/pkg/can/virtual"
	"github.com/samsamfire/gocanif/pkg/codec"
	"github.com/samsamfire/gocanif/pkg/config"
	log "github.com/sirupsen/logrus"
)

const usage = `usage : canif [flags] <command> [args]

commands :
  send <hex payload>   send payload, split in frames, to -id (default own net id)
  rtr                  send a remote request to -id
  listen               print received messages until interrupted
  broker               run a virtualcan broker on -ch
`

func main() {
	// Command line arguments
	configPath := flag.String("c", "", "ini configuration file")
	canInterface := flag.String("i", "", "interface type e.g. socketcan, virtual")
	channel := flag.String("ch", "", "channel e.g. can0, localhost:18888")
	net := flag.String("n", "", "own net id")
	id := flag.String("id", "", "destination id for send & rtr")
	verbose := flag.Bool("v", false, "debug logs")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load configuration : %v", err)
		}
		cfg = loaded
	}
	if *canInterface != "" {
		cfg.Bus.Interface = *canInterface
	}
	if *channel != "" {
		cfg.Bus.Channel = *channel
	}
	if *net != "" {
		value, err := strconv.ParseUint(*net, 0, 32)
		if err != nil {
			log.Fatalf("invalid net id %v : %v", *net, err)
		}
		cfg.Bus.Net = uint32(value)
	}
	destination := cfg.Bus.Net
	if *id != "" {
		value, err := strconv.ParseUint(*id, 0, 32)
		if err != nil {
			log.Fatalf("invalid id %v : %v", *id, err)
		}
		destination = uint32(value)
	}

	command := flag.Arg(0)
	if command == "broker" {
		runBroker(cfg.Bus.Channel)
		return
	}

	iface, err := open(cfg)
	if err != nil {
		log.Fatalf("failed to open %v on %v : %v", cfg.Bus.Interface, cfg.Bus.Channel, err)
	}
	defer iface.Close()

	switch command {
	case "send":
		if flag.NArg() < 2 {
			log.Fatal("send expects a hex payload")
		}
		payload, err := hex.DecodeString(strings.ReplaceAll(flag.Arg(1), " ", ""))
		if err != nil {
			log.Fatalf("invalid payload : %v", err)
		}
		err = iface.WriteDataFrame(destination, payload, false)
		if err != nil {
			log.Fatalf("failed to send : %v", err)
		}
		log.Infof("sent %v bytes to %x", len(payload), destination)
	case "rtr":
		err = iface.WriteDataFrame(destination, nil, true)
		if err != nil {
			log.Fatalf("failed to send : %v", err)
		}
		log.Infof("sent remote request to %x", destination)
	case "listen":
		listen(iface)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// Create and configure interface from configuration
func open(cfg *config.File) (*canif.Interface, error) {
	transport, err := can.NewTransport(cfg.Bus.Interface, cfg.Bus.Channel)
	if err != nil {
		return nil, err
	}
	iface := canif.NewInterface(transport, can.OpenOptions{
		Net:         cfg.Bus.Net,
		Mode:        cfg.Bus.Mode,
		TxQueueSize: cfg.Bus.TxQueueSize,
		RxQueueSize: cfg.Bus.RxQueueSize,
		TxTimeout:   cfg.Bus.TxTimeout,
		RxTimeout:   cfg.Bus.RxTimeout,
	})
	if err := iface.Open(); err != nil {
		return nil, err
	}
	if cfg.Bus.Bitrate != 0 {
		if err := iface.SetBaudRate(cfg.Bus.Bitrate); err != nil {
			// Virtual links and already configured interfaces can live without it
			log.Warnf("could not set bitrate : %v", err)
		}
	}
	if cfg.Bus.Extended {
		if err := iface.SetExtendedHeader(); err != nil {
			iface.Close()
			return nil, err
		}
	}
	for _, filter := range cfg.Filters {
		if err := iface.AddCanID(filter); err != nil {
			iface.Close()
			return nil, err
		}
	}
	return iface, nil
}

func listen(iface *canif.Interface) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	log.Infof("listening, net %x, %v header", iface.Net(), iface.HeaderMode())
	for {
		select {
		case <-stop:
			return
		default:
		}
		err := iface.ReadCANMessage()
		if errors.Is(err, can.ErrRxTimeout) {
			continue
		}
		if err != nil {
			log.Errorf("reception failed : %v", err)
			return
		}
		if err := printMessage(os.Stdout, iface.MessageBuffer()); err != nil {
			log.Errorf("failed to decode message : %v", err)
		}
	}
}

// Print every frame of buf followed by the reassembled payload
func printMessage(w io.Writer, buf *can.FrameBuffer) error {
	for i, frame := range buf.Frames() {
		rtr, err := codec.IsRTR(buf, i)
		if err != nil {
			return err
		}
		if rtr {
			fmt.Fprintf(w, "%08x  remote request\n", frame.ID)
			continue
		}
		fmt.Fprintf(w, "%08x  [%d]  % X\n", frame.ID, frame.Length, frame.Payload())
	}
	fmt.Fprintf(w, "message : %X\n", codec.ExtractPayload(buf))
	return nil
}

func runBroker(addr string) {
	broker, err := virtual.NewBroker(addr)
	if err != nil {
		log.Fatalf("failed to start broker : %v", err)
	}
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop
	broker.Close()
}
