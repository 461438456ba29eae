// Command psi-sender listens for a single psi-receiver connection, runs
// the sender side of a labeled PSI session, and sends back the computed
// match ciphertexts. It is the direct successor of the source's
// server.cpp driver, generalized from a hardcoded input/label set and
// port to CLI flags.
package main

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand/v2"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/op/go-logging"
	"github.com/urfave/cli"

	"github.com/privcats/labeled-psi/internal/fhe"
	"github.com/privcats/labeled-psi/internal/fhe/bgvbackend"
	"github.com/privcats/labeled-psi/internal/psilog"
	"github.com/privcats/labeled-psi/psi"
	"github.com/privcats/labeled-psi/wire"
)

var log *logging.Logger

func main() {
	app := cli.NewApp()
	app.Name = "psi-sender"
	app.Usage = "run the sender side of a labeled PSI session"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "addr",
			Value: ":9999",
			Usage: "address to listen on",
		},
		cli.StringFlag{
			Name:  "input",
			Value: "0x01,0x02,0x03,0x04,0x07,0x22,0xca,0xfe",
			Usage: "comma-separated sender input set (decimal or 0x-prefixed hex uint64 values)",
		},
		cli.StringFlag{
			Name:  "labels",
			Usage: "comma-separated labels, one per input element (omit for unlabeled PSI)",
		},
		cli.IntFlag{
			Name:  "input-bits",
			Value: 32,
			Usage: "bit width of input elements",
		},
		cli.IntFlag{
			Name:  "logn",
			Value: 13,
			Usage: "log2 ring degree (13 or 14)",
		},
		cli.IntFlag{
			Name:  "partitions",
			Value: 1,
			Usage: "number of partitions to split the sender's bucket capacity into",
		},
		cli.IntFlag{
			Name:  "window",
			Value: 0,
			Usage: "CLR17 windowing parameter (0 disables windowing)",
		},
		cli.BoolFlag{
			Name:  "debug-level",
			Usage: "log the ciphertext RNS level after every term and masking step",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "INFO",
			Usage: "CRITICAL, ERROR, WARNING, NOTICE, INFO or DEBUG",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "psi-sender:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log = psilog.Setup("psi-sender", levelFor(c.String("log-level")))

	inputs, err := parseValues(c.String("input"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	var labels []uint64
	if c.String("labels") != "" {
		labels, err = parseValues(c.String("labels"))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if len(labels) != len(inputs) {
			return cli.NewExitError(fmt.Sprintf("labels count %d does not match input count %d", len(labels), len(inputs)), 1)
		}
	}

	listener, err := net.Listen("tcp", c.String("addr"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("listening on %s: %v", c.String("addr"), err), 1)
	}
	defer listener.Close()

	log.Infof("listening on %s", listener.Addr())
	conn, err := listener.Accept()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer conn.Close()

	w := wire.NewWriter(conn)
	r := wire.NewReader(conn)

	log.Info("accepted, sending hello and set size")
	if err := w.WriteHello(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if err := w.WriteUint32(uint32(len(inputs))); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	log.Info("waiting for hello")
	if err := r.ReadHello(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	log.Info("waiting for receiver set size")
	receiverSize, err := r.ReadUint32()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	log.Info("waiting for seeds")
	seeds, err := r.ReadUint64s()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	params, err := psi.NewParams(bgvbackend.Backend{}, int(receiverSize), len(inputs), c.Int("input-bits"), c.Int("logn"), c.Int("partitions"), uint(c.Int("window")))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if err := params.SetSeeds(seeds); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	r.BindContext(params.Backend(), params.Context())

	log.Info("waiting for public key")
	pk, err := r.ReadPublicKey()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	log.Info("waiting for relin keys")
	rk, err := r.ReadRelinKeys()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	log.Info("waiting for encrypted inputs")
	windows, err := r.ReadCiphertexts()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	log.Info("computing matches")
	sender := psi.NewSender(params)
	if c.Bool("debug-level") {
		if reporter, ok := params.Backend().NewEvaluator(params.Context(), rk).(fhe.LevelReporter); ok {
			sender.DebugLevel = func(label string, ct fhe.Ciphertext) {
				log.Debugf("%s: level %d", label, reporter.Level(ct))
			}
		}
	}

	rnd := newRand()
	matches, err := sender.ComputeMatches(context.Background(), rnd, inputs, labels, pk, rk, windows)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	log.Info("sending matches")
	if err := w.WriteCiphertexts(matches); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}

func parseValues(s string) ([]uint64, error) {
	parts := strings.Split(s, ",")
	values := make([]uint64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing element %q: %w", p, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// newRand seeds a math/rand/v2 source from crypto/rand, matching the
// protocol's reliance on unpredictable per-run bucket-shuffle and mask
// randomness.
func newRand() *mrand.Rand {
	var seed [16]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic(fmt.Errorf("psi-sender: seeding randomness: %w", err))
	}
	return mrand.New(mrand.NewPCG(binary.BigEndian.Uint64(seed[0:8]), binary.BigEndian.Uint64(seed[8:16])))
}

func levelFor(name string) logging.Level {
	switch strings.ToUpper(name) {
	case "CRITICAL":
		return logging.CRITICAL
	case "ERROR":
		return logging.ERROR
	case "WARNING":
		return logging.WARNING
	case "NOTICE":
		return logging.NOTICE
	case "DEBUG":
		return logging.DEBUG
	default:
		return logging.INFO
	}
}
