// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// mcp23017 reads and configures an MCP23017 GPIO expander.
//
// Usage:
//
//	mcp23017 [flags] read
//	mcp23017 [flags] write REG VALUE
//	mcp23017 [flags] watch [-interval 100ms] [-n 0]
//	mcp23017 [flags] snapshot -o FILE.png [-interval 100ms] [-n 32]
//
// REG is a register name such as IODIRA or its address. The bus is either a
// host I²C bus selected with -bus or two GPIOs driven in software with
// -bitbang -sda PIN -scl PIN.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	prefixed "github.com/BertoldVdb/logrus-prefixed-formatter"
	"github.com/GermanBionicSystems/expander/bitbang"
	"github.com/GermanBionicSystems/expander/i2ccmd"
	"github.com/GermanBionicSystems/expander/mcp23xxx"
	"github.com/GermanBionicSystems/expander/portview"
	"github.com/sirupsen/logrus"
	"periph.io/x/host/v3"
)

func newLogger(verbose bool) *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	f := new(prefixed.TextFormatter)
	f.TimestampFormat = "2006-01-02 15:04:05"
	f.FullTimestamp = true
	f.SpacePadding = 40
	logger.SetFormatter(f)
	return logrus.NewEntry(logger)
}

func mainImpl() error {
	bus := flag.Int("bus", 1, "I²C bus number, used as controller channel")
	addr := flag.Uint("addr", uint(mcp23xxx.DefaultAddress), "7-bit device address, 0x20 to 0x27")
	sda := flag.String("sda", "", "SDA pin name")
	scl := flag.String("scl", "", "SCL pin name")
	bb := flag.Bool("bitbang", false, "drive SDA and SCL as GPIOs instead of using the host bus")
	timeout := flag.Duration("timeout", i2ccmd.DefaultTimeout, "timeout of one bus transaction")
	retries := flag.Int("retries", 0, "number of retries of a failed register access")
	verbose := flag.Bool("v", false, "log every register access")
	hz := i2ccmd.DefaultFrequency
	flag.Var(&hz, "hz", "bus clock")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: mcp23017 [flags] read | write REG VALUE | watch | snapshot -o FILE\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("missing command")
	}
	if *addr > 0x7F {
		return fmt.Errorf("invalid address 0x%X", *addr)
	}

	log := newLogger(*verbose)
	if _, err := host.Init(); err != nil {
		return err
	}
	var c i2ccmd.Controller
	if *bb {
		if *sda == "" || *scl == "" {
			return errors.New("-bitbang requires -sda and -scl")
		}
		c = bitbang.New()
	} else {
		h := i2ccmd.NewHost(nil)
		defer h.Close()
		c = h
	}
	opts := mcp23xxx.Opts{
		Timeout:   *timeout,
		Frequency: hz,
		Retry:     i2ccmd.RetryPolicy{Attempts: *retries},
		Logger:    log.WithField("prefix", "mcp23xxx"),
	}
	d := mcp23xxx.Device{Channel: i2ccmd.Channel(*bus), SDA: *sda, SCL: *scl, Addr: uint8(*addr)}
	dev, err := mcp23xxx.New(c, d, &opts)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	return run(ctx, dev, flag.Args(), os.Stdout)
}

// expander is the part of mcp23xxx.Dev used by the commands.
type expander interface {
	WriteConfig(reg mcp23xxx.Register, value byte) error
	ReadPorts() (uint16, error)
}

func run(ctx context.Context, dev expander, args []string, w io.Writer) error {
	switch args[0] {
	case "read":
		if len(args) != 1 {
			return errors.New("read takes no argument")
		}
		v, err := dev.ReadPorts()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "GPIOA=0x%02X GPIOB=0x%02X\n", byte(v), byte(v>>8))
		return err
	case "write":
		if len(args) != 3 {
			return errors.New("usage: write REG VALUE")
		}
		reg, err := mcp23xxx.ParseRegister(args[1])
		if err != nil {
			return err
		}
		v, err := strconv.ParseUint(args[2], 0, 8)
		if err != nil {
			return fmt.Errorf("invalid value %q", args[2])
		}
		return dev.WriteConfig(reg, byte(v))
	case "watch":
		fs := flag.NewFlagSet("watch", flag.ContinueOnError)
		interval := fs.Duration("interval", 100*time.Millisecond, "delay between reads")
		n := fs.Int("n", 0, "number of reads, 0 to read until interrupted")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		view := portview.New(w, nil)
		defer view.Halt()
		if err := sample(ctx, dev, *n, *interval, view.Show); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case "snapshot":
		fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
		out := fs.String("o", "", "PNG file to write")
		interval := fs.Duration("interval", 100*time.Millisecond, "delay between reads")
		n := fs.Int("n", 32, "number of reads")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *out == "" || *n <= 0 {
			return errors.New("usage: snapshot -o FILE.png [-n N]")
		}
		var samples []uint16
		err := sample(ctx, dev, *n, *interval, func(v uint16) error {
			samples = append(samples, v)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		if len(samples) == 0 {
			return errors.New("interrupted before the first sample")
		}
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		if err := portview.WritePNG(f, samples, nil); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// sample reads the ports n times, or until ctx is done when n is 0.
func sample(ctx context.Context, dev expander, n int, interval time.Duration, f func(uint16) error) error {
	for i := 0; n == 0 || i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i != 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
		v, err := dev.ReadPorts()
		if err != nil {
			return err
		}
		if err := f(v); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "mcp23017: %s.\n", err)
		os.Exit(1)
	}
}
