package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/navratilpetr/Makelangelo-firmware/core"
	"github.com/navratilpetr/Makelangelo-firmware/host/console"
	"github.com/navratilpetr/Makelangelo-firmware/host/serial"
	"github.com/navratilpetr/Makelangelo-firmware/logger"
	"github.com/navratilpetr/Makelangelo-firmware/standalone"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/config"
	"github.com/navratilpetr/Makelangelo-firmware/targets/sim"
)

var (
	configPath = flag.String("config", "", "Machine config (.json or .toml), default plotter when empty")
	device     = flag.String("device", "", "Serial device to read commands from, stdin when empty")
	baud       = flag.Int("baud", 250000, "Baud rate (ignored for USB CDC)")
	logFile    = flag.String("log", "", "Log file, console only when empty")
	level      = flag.String("level", "info", "Log level: debug, info, warn, error")
	realtime   = flag.Bool("realtime", true, "Pace the virtual clock to wall time")
)

func main() {
	flag.Parse()

	lvl, err := logger.ParseLevel(*level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	logger.InitLogger(logger.Options{Level: lvl, File: *logFile, SupportColor: *logFile == ""})
	defer logger.Sync()

	core.SetDebugWriter(func(s string) { logger.Debugf("%s", s) })
	core.SetDebugEnabled(lvl == logger.DebugLevel)
	core.InitAsyncDebug()

	if err := run(); err != nil {
		logger.Errorf("motion-sim: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

func loadConfig() (*config.MachineConfig, error) {
	if *configPath == "" {
		return config.DefaultPlotterConfig(), nil
	}
	return config.LoadFile(*configPath)
}

func openInput() (io.ReadCloser, error) {
	if *device == "" {
		return io.NopCloser(os.Stdin), nil
	}
	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	port, err := serial.OpenRetry(ctx, cfg, 250*time.Millisecond)
	if err != nil {
		return nil, err
	}
	if err := port.Flush(); err != nil {
		logger.Warnf("flush %s: %v", *device, err)
	}
	return port, nil
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	core.SetTimerFrequency(cfg.TimerFrequency)

	mgr, err := standalone.NewManagerWithConfig(cfg)
	if err != nil {
		return err
	}
	driver := sim.NewDriver(len(cfg.Motors))
	if err := mgr.Initialize(driver); err != nil {
		return err
	}
	if err := mgr.Start(); err != nil {
		return err
	}
	defer mgr.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clockDone := make(chan error, 1)
	go func() {
		clock := &sim.Clock{Realtime: *realtime}
		clockDone <- clock.Run(ctx)
	}()

	in, err := openInput()
	if err != nil {
		stop()
		<-clockDone
		return err
	}
	defer in.Close()

	logger.Infof("motion-sim: %d motors, %d segment buffer, interval %s",
		len(cfg.Motors), cfg.SegmentBufferSize, mgr.Generator().Converter().Name())

	c := console.New(mgr, os.Stdout)
	runErr := c.Run(ctx, in)
	if runErr == nil {
		runErr = mgr.WaitForEmptySegmentBuffer(ctx)
	}

	stop()
	<-clockDone

	st := mgr.Status()
	logger.Infow("final state",
		"position", st.Position,
		"steps", st.Steps,
		"pulses", st.Stats.Pulses,
		"retired", st.Stats.Retired,
		"underruns", st.Stats.Underruns,
		"limit_trips", st.Stats.LimitTrips,
		"halted", st.Halted)
	for m := 0; m < len(cfg.Motors); m++ {
		fmt.Printf("%s: %d steps (%d pulses)\n", cfg.Motors[m].Letter, driver.Position(m), driver.Steps(m))
	}

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
