// labrig is the command line front end for the measurement rig: IV sweeps
// against field or gate, DAQ-only gate tests, magnet and cryostat
// housekeeping, and sweep planning.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mesolab/labrig"
	"github.com/mesolab/labrig/daq"
	"github.com/mesolab/labrig/driver/vcp"
	"github.com/mesolab/labrig/exp"
	"github.com/mesolab/labrig/instrument/ips120"
	"github.com/mesolab/labrig/instrument/itc503"
	"github.com/mesolab/labrig/instrument/k2182"
	"github.com/mesolab/labrig/instrument/k6220"
	"github.com/mesolab/labrig/lib/cmdlog"
	"github.com/mesolab/labrig/lib/connutil"
	"github.com/mesolab/labrig/lib/find"
	"github.com/mesolab/labrig/monitor"
	"github.com/mesolab/labrig/rigconfig"
	"github.com/mesolab/labrig/sweep"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries the loaded config and logger into the subcommands.
type app struct {
	cfgPath string
	cfg     rigconfig.Config
	log     zerolog.Logger

	// per-run flags
	name       string
	repeats    int
	delay      float64
	compliance float64
	timeout    time.Duration
	watch      bool
	current  limitsFlags
	fields   limitsFlags
	gates    limitsFlags
	bias     float64
	gateMax  float64
	gateStep float64
}

type limitsFlags struct {
	start, stop, step float64
}

func (l limitsFlags) limits() exp.Limits {
	return exp.Limits{Start: l.start, Stop: l.stop, Step: l.step}
}

func rootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "labrig",
		Short:         "Drive the transport measurement rig",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
				With().Timestamp().Logger()
			cfg, err := rigconfig.Load(a.cfgPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default "+rigconfig.DefaultPath()+")")

	root.AddCommand(planCmd(a), tempsCmd(a), magnetCmd(a),
		ivFieldCmd(a), ivGateCmd(a), daqGateCmd(a), fixedBiasCmd(a), busCmd(a))
	return root
}

// runCtx is cancelled by SIGINT/SIGTERM so a ^C still walks the safe
// shutdown path.
func runCtx() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func planCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <points>",
		Short: "Print the buffer chunking plan for a sweep point count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := strconv.Atoi(args[0])
			if err != nil {
				return err
			}
			plan, err := sweep.Split(points)
			if err != nil {
				return err
			}
			fmt.Printf("%d points: %d runs of %d\n", points, plan.Runs, plan.Size)
			return nil
		},
	}
}

func tempsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "temps",
		Short: "Read the cryostat temperature sensors",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn := connutil.Conn{SerialPort: a.cfg.SerialPort, GpibPAD: a.cfg.TempAddr}
			gpib, cleanup, err := conn.Setup(
				labrig.WithInstrumentTerminator("\r"),
				labrig.WithEOTChar('\r'),
			)
			if err != nil {
				return err
			}
			defer cleanup()

			tc := itc503.New(gpib)
			if err := tc.Init(); err != nil {
				return err
			}
			temps, err := tc.Temperatures()
			if err != nil {
				return err
			}
			fmt.Printf("sensor 1: %.3f K\nsensor 2: %.3f K\nsensor 3: %.3f K\n",
				temps[0], temps[1], temps[2])
			return nil
		},
	}
}

func magnetCmd(a *app) *cobra.Command {
	magnet := &cobra.Command{
		Use:   "magnet",
		Short: "Magnet supply housekeeping",
	}
	magnet.AddCommand(&cobra.Command{
		Use:   "zero",
		Short: "Sweep the field to zero and hold",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runCtx()
			defer cancel()

			conn := connutil.Conn{SerialPort: a.cfg.SerialPort, GpibPAD: a.cfg.MagnetAddr}
			gpib, cleanup, err := conn.Setup(
				labrig.WithInstrumentTerminator("\r"),
				labrig.WithEOTChar('\r'),
			)
			if err != nil {
				return err
			}
			defer cleanup()

			mag := ips120.New(gpib)
			if err := mag.Init(ctx, a.cfg.MagnetRate); err != nil {
				return err
			}
			a.log.Info().Msg("sweeping field to zero")
			return mag.EndAtZero(ctx)
		},
	})
	return magnet
}

func addRunFlags(cmd *cobra.Command, a *app) {
	f := cmd.Flags()
	f.StringVar(&a.name, "name", "", "run name (default timestamped)")
	f.IntVar(&a.repeats, "repeats", 1, "curves averaged per outer point")
	f.Float64Var(&a.delay, "delay", 0.05, "source delay per point, seconds")
	f.Float64Var(&a.compliance, "compliance", 1, "source compliance, volts")
	f.DurationVar(&a.timeout, "timeout", 5*time.Minute, "per-sweep timeout")
	f.BoolVar(&a.watch, "monitor", false, "show the live monitor during the run")
	f.Float64Var(&a.current.start, "curr-start", 0, "sweep start current, amps")
	f.Float64Var(&a.current.stop, "curr-stop", 1e-6, "sweep stop current, amps")
	f.Float64Var(&a.current.step, "curr-step", 1e-8, "sweep current step, amps")
}

// openRig brings up the GPIB session and the source-meter pair.
func openRig(a *app) (*labrig.Controller, *k6220.Pair, func() error, error) {
	conn := connutil.Conn{SerialPort: a.cfg.SerialPort, GpibPAD: a.cfg.SourceAddr}
	gpib, cleanup, err := conn.Setup()
	if err != nil {
		return nil, nil, nil, err
	}
	source, err := gpib.Device(a.cfg.SourceAddr)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	pair := k6220.New(source)
	if err := pair.CheckNanovoltmeter(); err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return gpib, pair, cleanup, nil
}

// run executes fn, optionally behind the live monitor.
func run(a *app, datPath string, total int, fn func(ctx context.Context) error) error {
	ctx, cancel := runCtx()
	defer cancel()

	if !a.watch {
		return fn(ctx)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- fn(ctx) }()
	if err := monitor.Run(monitor.Options{
		Path:      datPath,
		Title:     a.name,
		TotalRows: total,
		Cancel:    cancel,
	}); err != nil {
		return err
	}
	return <-errCh
}

func ivFieldCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iv-field",
		Short: "IV curves versus magnetic field",
		RunE: func(cmd *cobra.Command, args []string) error {
			gpib, pair, cleanup, err := openRig(a)
			if err != nil {
				return err
			}
			defer cleanup()

			magDev, err := gpib.Device(a.cfg.MagnetAddr,
				labrig.WithDeviceTerminator("\r"), labrig.WithDeviceEOT('\r'))
			if err != nil {
				return err
			}
			mag := ips120.New(magDev)

			// datPath backfills the timestamped default name, so it must
			// run before cfg captures Name or the monitor watches a file
			// the run never writes.
			dat := datPath(a)
			cfg := exp.IVvsFieldConfig{
				Name:         a.name,
				DataDir:      a.cfg.DataDir,
				Current:      a.current.limits(),
				Fields:       a.fields.limits(),
				Repeats:      a.repeats,
				SourceDelay:  a.delay,
				Compliance:   a.compliance,
				FieldSettle:  a.cfg.FieldSettle,
				SweepTimeout: a.timeout,
			}
			return run(a, dat, cfg.Fields.Points(), func(ctx context.Context) error {
				if err := mag.Init(ctx, a.cfg.MagnetRate); err != nil {
					return err
				}
				return exp.IVvsField(ctx, a.log, pair, mag, cfg)
			})
		},
	}
	addRunFlags(cmd, a)
	f := cmd.Flags()
	f.Float64Var(&a.fields.start, "field-start", 0, "first field, tesla")
	f.Float64Var(&a.fields.stop, "field-stop", 1, "last field, tesla")
	f.Float64Var(&a.fields.step, "field-step", 0.1, "field step, tesla")
	return cmd
}

func ivGateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iv-gate",
		Short: "IV curves versus gate voltage",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, pair, cleanup, err := openRig(a)
			if err != nil {
				return err
			}
			defer cleanup()

			gate, err := daq.NewAnalogOutput(a.cfg.GateChannel, -10, 10)
			if err != nil {
				return err
			}
			defer gate.Close()

			dat := datPath(a)
			cfg := exp.IVvsGateConfig{
				Name:         a.name,
				DataDir:      a.cfg.DataDir,
				Current:      a.current.limits(),
				Gates:        a.gates.limits(),
				GateAmp:      a.cfg.GateAmp,
				GateDelay:    a.cfg.GateDelay,
				Repeats:      a.repeats,
				SourceDelay:  a.delay,
				Compliance:   a.compliance,
				SweepTimeout: a.timeout,
			}
			return run(a, dat, cfg.Gates.Points(), func(ctx context.Context) error {
				return exp.IVvsGate(ctx, a.log, pair, gate, cfg)
			})
		},
	}
	addRunFlags(cmd, a)
	f := cmd.Flags()
	f.Float64Var(&a.gates.start, "gate-start", 0, "first gate voltage, volts")
	f.Float64Var(&a.gates.stop, "gate-stop", 10, "last gate voltage, volts")
	f.Float64Var(&a.gates.step, "gate-step", 0.5, "gate voltage step, volts")
	return cmd
}

func daqGateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daq-gate",
		Short: "DAQ-only gate staircase resistance check",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, err := daq.NewAnalogOutput(a.cfg.GateChannel, -10, 10)
			if err != nil {
				return err
			}
			defer gate.Close()

			in, err := daq.NewAnalogInput(daq.InputConfig{
				Channel:    a.cfg.InputChannel,
				MinVolts:   -10,
				MaxVolts:   10,
				SampleRate: a.cfg.SampleRate,
				Samples:    a.cfg.Samples,
			})
			if err != nil {
				return err
			}
			defer in.Close()

			ctx, cancel := runCtx()
			defer cancel()
			return exp.DAQGateTest(ctx, a.log, gate, in, exp.DAQGateTestConfig{
				Name:      a.name,
				DataDir:   a.cfg.DataDir,
				Bias:      a.bias,
				GateMax:   a.gateMax,
				GateStep:  a.gateStep,
				GateAmp:   a.cfg.GateAmp,
				CVAmp:     a.cfg.CVAmp,
				GateDelay: a.cfg.GateDelay,
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&a.name, "name", "", "run name (default timestamped)")
	f.Float64Var(&a.bias, "bias", 0.1, "bias voltage across the series resistor, volts")
	f.Float64Var(&a.gateMax, "gate-max", 10, "staircase amplitude, volts")
	f.Float64Var(&a.gateStep, "gate-step", 0.1, "staircase step, volts")
	return cmd
}

func fixedBiasCmd(a *app) *cobra.Command {
	var (
		bias     float64
		average  int
		points   int
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "fixed-bias",
		Short: "Sample voltage over time at a constant current",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn := connutil.Conn{SerialPort: a.cfg.SerialPort, GpibPAD: a.cfg.SourceAddr}
			gpib, cleanup, err := conn.Setup()
			if err != nil {
				return err
			}
			defer cleanup()

			source, err := gpib.Device(a.cfg.SourceAddr)
			if err != nil {
				return err
			}
			voltDev, err := gpib.Device(a.cfg.VoltAddr)
			if err != nil {
				return err
			}
			src := k6220.New(source)
			meter := k2182.New(voltDev)

			ctx, cancel := runCtx()
			defer cancel()
			return exp.FixedBias(ctx, a.log, src, meter, exp.FixedBiasConfig{
				Name:       a.name,
				DataDir:    a.cfg.DataDir,
				Bias:       bias,
				Compliance: a.compliance,
				Average:    average,
				Interval:   interval,
				Points:     points,
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&a.name, "name", "", "run name (default timestamped)")
	f.Float64Var(&bias, "bias", 1e-6, "source current, amps")
	f.Float64Var(&a.compliance, "compliance", 1, "source compliance, volts")
	f.IntVar(&average, "average", 5, "readings averaged per point")
	f.IntVar(&points, "points", 100, "points to log")
	f.DurationVar(&interval, "interval", time.Second, "time between points")
	return cmd
}

func busCmd(a *app) *cobra.Command {
	var pad int
	cmd := &cobra.Command{
		Use:   "bus <command>...",
		Short: "Send raw commands to an instrument, logging the traffic",
		Long: `Send each argument to the instrument at --pad. Arguments ending
in '?' are sent as queries and their replies printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			portName := a.cfg.SerialPort
			if portName == "" {
				tty, err := find.Find(find.AdapterFilter)
				if err != nil {
					return err
				}
				portName = "/dev/" + tty
			}
			port, err := vcp.NewVCP(portName)
			if err != nil {
				return err
			}
			defer port.Close()

			gpib, err := labrig.NewController(port, pad, false)
			if err != nil {
				return err
			}
			defer gpib.FrontPanel(true)

			_, bquery, send := cmdlog.PrettyFuncs(gpib)
			for _, arg := range args {
				if strings.HasSuffix(arg, "?") {
					bquery(arg)
				} else {
					send(arg)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pad, "pad", 12, "GPIB primary address")
	return cmd
}

// datPath mirrors exp.NewDatalog's naming so the monitor can find the file
// before the first row lands. An empty run name is backfilled so the config
// handed to the experiment carries the same name.
func datPath(a *app) string {
	if a.name == "" {
		a.name = fmt.Sprintf("run_%d", time.Now().Unix())
	}
	return filepath.Join(a.cfg.DataDir, a.name+".dat")
}
