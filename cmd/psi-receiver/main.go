// Command psi-receiver drives the receiver side of a labeled PSI session
// over TCP: it connects to a psi-sender, negotiates parameters, encrypts
// its input set, and prints the intersection it learns back. It is the
// direct successor of the source's client.cpp driver, generalized from a
// hardcoded input set and port to CLI flags.
package main

import (
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

	"github.com/privcats/labeled-psi/internal/fhe/bgvbackend"
	"github.com/privcats/labeled-psi/internal/psilog"
	"github.com/privcats/labeled-psi/psi"
	"github.com/privcats/labeled-psi/wire"
)

var log *logging.Logger

func main() {
	app := cli.NewApp()
	app.Name = "psi-receiver"
	app.Usage = "run the receiver side of a labeled PSI session"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "addr",
			Value: "localhost:9999",
			Usage: "address of the psi-sender to connect to",
		},
		cli.StringFlag{
			Name:  "input",
			Value: "0x02,0x07,0x05,0xfe",
			Usage: "comma-separated receiver input set (decimal or 0x-prefixed hex uint64 values)",
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
			Usage: "number of sender partitions; must equal the psi-sender's --partitions, since it sets the highest power the receiver's windows cover",
		},
		cli.IntFlag{
			Name:  "window",
			Value: 0,
			Usage: "CLR17 windowing parameter (0 disables windowing)",
		},
		cli.BoolFlag{
			Name:  "labeled",
			Usage: "decode the sender's matches as labeled",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "INFO",
			Usage: "CRITICAL, ERROR, WARNING, NOTICE, INFO or DEBUG",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "psi-receiver:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log = psilog.Setup("psi-receiver", levelFor(c.String("log-level")))

	inputs, err := parseInputs(c.String("input"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	conn, err := net.Dial("tcp", c.String("addr"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("dialing %s: %v", c.String("addr"), err), 1)
	}
	defer conn.Close()

	w := wire.NewWriter(conn)
	r := wire.NewReader(conn)

	log.Info("connected, waiting for hello and sender set size")
	if err := r.ReadHello(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	senderSize, err := r.ReadUint32()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	log.Info("picking parameters")
	params, err := psi.NewParams(bgvbackend.Backend{}, len(inputs), int(senderSize), c.Int("input-bits"), c.Int("logn"), c.Int("partitions"), uint(c.Int("window")))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	rnd := newRand()
	params.GenerateSeeds(rnd)
	r.BindContext(params.Backend(), params.Context())

	receiver := psi.NewReceiver(params)

	log.Info("sending hello, set size, seeds, public key, relin keys")
	if err := w.WriteHello(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if err := w.WriteUint32(uint32(len(inputs))); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if err := w.WriteUint64s(params.Seeds()); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if err := w.WritePublicKey(receiver.PublicKey()); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if err := w.WriteRelinKeys(receiver.RelinKeys()); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	log.Info("encrypting inputs")
	windows, buckets, err := receiver.Encrypt(rnd, inputs)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	log.Info("sending encrypted inputs")
	if err := w.WriteCiphertexts(windows); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	log.Info("waiting for encrypted matches")
	matches, err := r.ReadCiphertexts()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	log.Info("decrypting matches")
	if c.Bool("labeled") {
		decoded := receiver.DecryptLabeled(matches)
		fmt.Printf("%d matches found:\n", len(decoded))
		for _, m := range decoded {
			slot := buckets[m.Bucket]
			if slot.Empty() {
				continue
			}
			fmt.Printf("  0x%x -> label 0x%x\n", inputs[slot.InputIndex], m.Label)
		}
		return nil
	}

	decoded := receiver.Decrypt(matches)
	fmt.Printf("%d matches found:\n", len(decoded))
	for _, m := range decoded {
		slot := buckets[m.Bucket]
		if slot.Empty() {
			continue
		}
		fmt.Printf("  0x%x\n", inputs[slot.InputIndex])
	}
	return nil
}

func parseInputs(s string) ([]uint64, error) {
	parts := strings.Split(s, ",")
	values := make([]uint64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing input element %q: %w", p, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// newRand seeds a math/rand/v2 source from crypto/rand, matching the
// protocol's reliance on unpredictable per-run hash seeds and masks.
func newRand() *mrand.Rand {
	var seed [16]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic(fmt.Errorf("psi-receiver: seeding randomness: %w", err))
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
