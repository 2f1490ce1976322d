/*
@Description: CLI bootstrap for the fecrelay core (spec.md §4.G / §6)
@Language: Go 1.23.4
*/

package main

import (
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	fecrelay "fecrelay"
)

func main() {
	app := cli.NewApp()
	app.Name = "fecrelay"
	app.Usage = "UDP pub/sub relay with block and stream FEC"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "action", Usage: "proxy, block, stream or subscribe"},
		cli.IntFlag{Name: "port", Usage: "local UDP bind port"},
		cli.IntFlag{Name: "connect", Usage: "remote port on 127.0.0.1"},
		cli.IntFlag{Name: "kbps", Usage: "shaper rate when subscribing"},
		cli.IntFlag{Name: "size", Usage: "block size, or chunk count for --action stream"},
		cli.IntFlag{Name: "channel", Value: 1, Usage: "channel id"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		if _, ok := err.(usageError); ok {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

// usageError marks an unrecognized action or missing required flag, which
// spec.md §6 maps to exit code 1 specifically (as opposed to any other
// uncaught error, which just needs to be non-zero).
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func run(c *cli.Context) error {
	log, _ := zap.NewProduction()
	defer log.Sync()

	switch c.String("action") {
	case "proxy":
		return runProxy(c, log)
	case "block":
		return runBlock(c, log)
	case "stream":
		return runStream(c, log)
	case "subscribe":
		return runSubscribe(c, log)
	case "":
		return usageError{"missing required flag --action"}
	default:
		return usageError{fmt.Sprintf("unrecognized action %q", c.String("action"))}
	}
}

func requirePort(c *cli.Context) (int, error) {
	port := c.Int("port")
	if port <= 0 {
		return 0, usageError{"missing required flag --port"}
	}
	return port, nil
}

func bindSocket(port int) (fecrelay.Socket, *net.UDPAddr, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, nil, errors.Wrap(err, "bind failed")
	}
	return fecrelay.NewUDPSocket(conn), conn.LocalAddr().(*net.UDPAddr), nil
}

// runProxy runs the relay loop against a bound socket until interrupted
// (spec.md §4.G "--action proxy").
func runProxy(c *cli.Context, log *zap.Logger) error {
	port, err := requirePort(c)
	if err != nil {
		return err
	}
	socket, _, err := bindSocket(port)
	if err != nil {
		return err
	}
	defer socket.Close()

	scheduler := fecrelay.NewScheduler()
	relay := fecrelay.NewRelay(socket, scheduler, fecrelay.DefaultStats, log)

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		close(stop)
	}()

	log.Info("relay listening", zap.Int("port", port))
	return relay.Run(stop)
}

// runBlock sends a size-byte message of repeated 'j' as a BLOCK packet
// sequence to --connect (spec.md §4.G "--action block").
func runBlock(c *cli.Context, log *zap.Logger) error {
	size := c.Int("size")
	if size <= 0 {
		return usageError{"missing required flag --size"}
	}
	connect := c.Int("connect")
	if connect <= 0 {
		return usageError{"missing required flag --connect"}
	}
	channel := uint32(c.Int("channel"))

	data := make([]byte, size)
	for i := range data {
		data[i] = 'j'
	}

	block, err := fecrelay.NewBlockFromData(data)
	if err != nil {
		return err
	}

	conn, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", connect))
	if err != nil {
		return errors.Wrap(err, "dial failed")
	}
	defer conn.Close()

	blockID := uint32(rand.Int31())
	n := block.NOriginals()
	count := fecrelay.ReemissionCount(n)
	for _, sym := range block.UnseenSymbols(count) {
		wire := fecrelay.EncodeBlock(channel, blockID, uint32(size), sym.Index, sym.Payload)
		if _, err := conn.Write(wire); err != nil {
			return errors.Wrap(err, "send failed")
		}
	}
	log.Info("block sent", zap.Int("bytes", size), zap.Int("symbols", count))
	return nil
}

// runStream generates size random 1000-byte chunks, feeds them through a
// stream encoder, and sends the resulting symbol sequence (spec.md §4.G
// "--action stream").
func runStream(c *cli.Context, log *zap.Logger) error {
	size := c.Int("size")
	if size <= 0 {
		return usageError{"missing required flag --size"}
	}
	connect := c.Int("connect")
	if connect <= 0 {
		return usageError{"missing required flag --connect"}
	}
	channel := uint32(c.Int("channel"))

	conn, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", connect))
	if err != nil {
		return errors.Wrap(err, "dial failed")
	}
	defer conn.Close()

	enc := fecrelay.NewStreamEncoder()
	for i := 0; i < size; i++ {
		chunk := make([]byte, 1000)
		rand.Read(chunk)
		enc.QueueChunk(chunk)
	}

	sent := 0
	for enc.HasData() {
		sym := enc.GetSymbol()
		wire := fecrelay.EncodeStream(channel, sym.Index, sym.Payload)
		if _, err := conn.Write(wire); err != nil {
			return errors.Wrap(err, "send failed")
		}
		sent++
	}
	log.Info("stream sent", zap.Int("chunks", size), zap.Int("symbols", sent))
	return nil
}

// runSubscribe sends one CONTROL.SUBSCRIBE packet then listens and logs
// what arrives (spec.md §4.G "--action subscribe").
func runSubscribe(c *cli.Context, log *zap.Logger) error {
	port, err := requirePort(c)
	if err != nil {
		return err
	}
	connect := c.Int("connect")
	if connect <= 0 {
		return usageError{"missing required flag --connect"}
	}
	kbps := c.Int("kbps")
	if kbps <= 0 {
		return usageError{"missing required flag --kbps"}
	}
	channel := uint32(c.Int("channel"))

	socket, _, err := bindSocket(port)
	if err != nil {
		return err
	}
	defer socket.Close()

	remote := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: connect}
	sub := fecrelay.EncodeControl(fecrelay.ActionSubscribe, channel, uint32(kbps))
	if _, err := socket.WriteTo(sub, remote); err != nil {
		return errors.Wrap(err, "subscribe send failed")
	}
	log.Info("subscribed", zap.Uint32("channel", channel), zap.Int("kbps", kbps))

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		close(stop)
		socket.Close() // unblocks the ReadFrom below
	}()

	buf := make([]byte, fecrelay.MaxPacketSize)
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		n, from, err := socket.ReadFrom(buf)
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
			}
			return errors.Wrap(err, "read failed")
		}
		p, err := fecrelay.Decode(buf[:n])
		if err != nil {
			log.Warn("bad packet", zap.Error(err))
			continue
		}
		log.Info("received", zap.Uint32("type", uint32(p.Type)), zap.Stringer("from", from), zap.Int("bytes", n))
	}
}
