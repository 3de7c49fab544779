package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/QKD-VITAP/qkdctl/internal/channel"
	"github.com/QKD-VITAP/qkdctl/internal/client"
	"github.com/QKD-VITAP/qkdctl/internal/config"
	clierrors "github.com/QKD-VITAP/qkdctl/internal/errors"
	"github.com/QKD-VITAP/qkdctl/internal/notify"
	"github.com/QKD-VITAP/qkdctl/internal/output"
	"github.com/QKD-VITAP/qkdctl/internal/session"
	"github.com/QKD-VITAP/qkdctl/internal/tracker"
	"github.com/QKD-VITAP/qkdctl/internal/tui/watch"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run and inspect BB84 simulations",
	}

	cmd.AddCommand(newSimulateRunCmd())
	cmd.AddCommand(newSimulateSweepCmd())
	cmd.AddCommand(newSimulateStatusCmd())
	cmd.AddCommand(newSimulateHistoryCmd())

	return cmd
}

// simulationFlags collects the BB84 parameters shared by simulate run
// and attack run.
type simulationFlags struct {
	qubits             int
	length             float64
	attenuation        float64
	depolarization     float64
	sourceEfficiency   float64
	detectorEfficiency float64
}

func (f *simulationFlags) register(cmd *cobra.Command) {
	defaults := client.DefaultSimulationRequest()

	cmd.Flags().IntVar(&f.qubits, "qubits", defaults.NumQubits, "Number of qubits to transmit")
	cmd.Flags().Float64Var(&f.length, "length", defaults.ChannelLength, "Channel length in km")
	cmd.Flags().Float64Var(&f.attenuation, "attenuation", defaults.ChannelAttenuation, "Channel attenuation in dB/km")
	cmd.Flags().Float64Var(&f.depolarization, "depolarization", defaults.ChannelDepolarization, "Channel depolarization probability")
	cmd.Flags().Float64Var(&f.sourceEfficiency, "source-efficiency", defaults.PhotonSourceEfficiency, "Photon source efficiency")
	cmd.Flags().Float64Var(&f.detectorEfficiency, "detector-efficiency", defaults.DetectorEfficiency, "Detector efficiency")
}

func (f *simulationFlags) request() (client.SimulationRequest, error) {
	if f.qubits <= 0 {
		return client.SimulationRequest{}, clierrors.InvalidArgument("--qubits must be positive")
	}

	if f.length <= 0 {
		return client.SimulationRequest{}, clierrors.InvalidArgument("--length must be positive")
	}

	return client.SimulationRequest{
		NumQubits:              f.qubits,
		ChannelLength:          f.length,
		ChannelAttenuation:     f.attenuation,
		ChannelDepolarization:  f.depolarization,
		PhotonSourceEfficiency: f.sourceEfficiency,
		DetectorEfficiency:     f.detectorEfficiency,
	}, nil
}

func newSimulateRunCmd() *cobra.Command {
	var (
		flags     simulationFlags
		watchFlag bool
		syncFlag  bool
		format    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit a BB84 simulation and follow it to completion",
		Long: `Submit a BB84 simulation to the platform.

By default the simulation runs in the background and its status is
polled until it completes or fails. With --watch a live view follows
the platform's push feed as well. With --sync the server computes the
simulation within the request.`,
		Example: `  qkdctl simulate run
  qkdctl simulate run --qubits 500 --length 25
  qkdctl simulate run --watch`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			outFormat, err := output.ParseFormat(format)
			if err != nil {
				return clierrors.InvalidArgument(err.Error())
			}

			req, err := flags.request()
			if err != nil {
				return err
			}

			sess, cfg, err := newAuthenticatedSession()
			if err != nil {
				return err
			}

			if syncFlag {
				spin := out.Spinner("Running simulation")
				spin.Start()

				accepted, err := sess.Client().RunSimulation(cmd.Context(), req)
				if err != nil {
					spin.StopWithFailure("Simulation failed")
					return clierrors.SubmitFailed(err)
				}

				spin.StopWithSuccess("Simulation complete")

				return printResult(out, outFormat, accepted.SimulationID, accepted.ResultsSummary)
			}

			if watchFlag {
				return runWatch(cmd, sess, cfg, req)
			}

			tr := tracker.New(sess.Client(), trackerIntervals(cfg))
			defer tr.Reset()

			id, err := tr.Submit(cmd.Context(), req)
			if err != nil {
				return clierrors.SubmitFailed(err)
			}

			spin := out.Spinner(fmt.Sprintf("Simulation %s submitted", id))
			spin.Start()

			jobs, cancel := tr.Watch()
			defer cancel()

			for job := range jobs {
				switch job.State {
				case tracker.StateRunning:
					spin.UpdateMessage(fmt.Sprintf("Simulation %s running (%d%%)", id, job.Progress))
				case tracker.StateCompleted:
					spin.StopWithSuccess(fmt.Sprintf("Simulation %s completed", id))
					return printResult(out, outFormat, id, job.Result)
				case tracker.StateFailed:
					spin.StopWithFailure(fmt.Sprintf("Simulation %s failed", id))
					return clierrors.SimulationFailed(job.Reason)
				}
			}

			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&watchFlag, "watch", false, "Follow the simulation in a live view")
	cmd.Flags().BoolVar(&syncFlag, "sync", false, "Run the simulation synchronously in one request")
	cmd.Flags().StringVarP(&format, "output", "o", "text", "Result format: text, json, yaml, toml")

	return cmd
}

// sweepableParams are the base parameters a sweep range may vary.
var sweepableParams = map[string]bool{
	"num_qubits":               true,
	"channel_length":           true,
	"channel_attenuation":      true,
	"channel_depolarization":   true,
	"photon_source_efficiency": true,
	"detector_efficiency":      true,
}

// parseSweepRanges turns repeated name=v1,v2,... flags into sweep ranges.
func parseSweepRanges(specs []string) (map[string][]float64, error) {
	ranges := make(map[string][]float64, len(specs))

	for _, spec := range specs {
		name, list, ok := strings.Cut(spec, "=")
		if !ok || list == "" {
			return nil, clierrors.InvalidArgument(
				fmt.Sprintf("--sweep %q is not of the form name=value,value,...", spec))
		}

		if !sweepableParams[name] {
			return nil, clierrors.InvalidArgument(
				fmt.Sprintf("--sweep parameter %q is not a simulation parameter", name))
		}

		var values []float64

		for _, raw := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, clierrors.InvalidArgument(
					fmt.Sprintf("--sweep %s: %q is not a number", name, raw))
			}

			values = append(values, v)
		}

		ranges[name] = values
	}

	return ranges, nil
}

func newSimulateSweepCmd() *cobra.Command {
	var (
		flags  simulationFlags
		sweeps []string
		format string
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one simulation per combination of swept parameters",
		Long: `Run the base simulation once for every combination of the values
given with --sweep. Each --sweep flag names one simulation parameter
and a comma-separated list of values to try; the remaining parameters
are held at the base values. The command blocks until the whole sweep
finishes and lists the resulting simulation ids.`,
		Example: `  qkdctl simulate sweep --sweep channel_length=5,10,25,50
  qkdctl simulate sweep --sweep num_qubits=500,1000 --sweep channel_attenuation=0.1,0.2`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			outFormat, err := output.ParseFormat(format)
			if err != nil {
				return clierrors.InvalidArgument(err.Error())
			}

			if len(sweeps) == 0 {
				return clierrors.InvalidArgument("at least one --sweep range is required")
			}

			ranges, err := parseSweepRanges(sweeps)
			if err != nil {
				return err
			}

			req, err := flags.request()
			if err != nil {
				return err
			}

			sess, _, err := newAuthenticatedSession()
			if err != nil {
				return err
			}

			spin := out.Spinner("Running parameter sweep")
			spin.Start()

			result, err := sess.Client().ParameterSweep(cmd.Context(), client.SweepRequest{
				BaseParameters:  req,
				SweepParameters: ranges,
			})
			if err != nil {
				spin.StopWithFailure("Parameter sweep failed")
				return clierrors.SubmitFailed(err)
			}

			spin.StopWithSuccess(fmt.Sprintf("Sweep finished with %d simulations", result.TotalSimulations))

			if outFormat != output.FormatText {
				return out.PrintFormat(outFormat, result)
			}

			out.Println()

			for _, id := range result.SimulationIDs {
				out.Print("  %s\n", id)
			}

			out.Println()
			out.Muted("Inspect each run with qkdctl simulate status <id>")

			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringArrayVar(&sweeps, "sweep", nil, "Parameter range as name=value,value,... (repeatable)")
	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format: text, json, yaml, toml")

	return cmd
}

// trackerIntervals maps the configured poll timings onto the tracker.
func trackerIntervals(cfg *config.Config) tracker.Option {
	return tracker.WithIntervals(
		time.Duration(cfg.InitialPollDelay())*time.Millisecond,
		time.Duration(cfg.PollInterval())*time.Millisecond,
	)
}

// runWatch drives the live view: push feed, tracker, and notification
// stack in one screen.
func runWatch(cmd *cobra.Command, sess *session.Session, cfg *config.Config, req client.SimulationRequest) error {
	hub := notify.NewHub(nil)
	defer hub.Close()

	ch := channel.New(cfg.WSURL(),
		channel.WithAuthorizer(sess),
		channel.WithNotifications(hub))
	defer ch.Disconnect()

	if err := ch.Connect(cmd.Context()); err != nil {
		// The reconnect policy covers later drops; a refused first
		// connection degrades to poll-only tracking.
		hub.Push("simulation feed unavailable, polling instead", notify.Warning)
	}

	tr := tracker.New(sess.Client(), trackerIntervals(cfg), tracker.WithNotifications(hub))
	defer tr.Reset()

	if _, err := tr.Submit(cmd.Context(), req); err != nil {
		return clierrors.SubmitFailed(err)
	}

	return watch.Run(ch, tr, hub)
}

func newSimulateStatusCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status <simulation-id>",
		Short: "Fetch the status of a background simulation",
		Long: `Query the platform for a single simulation's state, progress, and
result payload when it has finished.`,
		Example: `  qkdctl simulate status 3f6c2a8e
  qkdctl simulate status 3f6c2a8e -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			outFormat, err := output.ParseFormat(format)
			if err != nil {
				return clierrors.InvalidArgument(err.Error())
			}

			sess, _, err := newAuthenticatedSession()
			if err != nil {
				return err
			}

			status, err := sess.Client().SimulationStatus(cmd.Context(), args[0])
			if err != nil {
				return clierrors.APIUnreachable(sess.Client().BaseURL(), err)
			}

			if outFormat != output.FormatText {
				return out.PrintFormat(outFormat, status)
			}

			out.Print("Simulation: %s\n", status.SimulationID)
			out.Print("Status:     %s\n", status.Status)
			out.Print("Progress:   %d%%\n", status.Progress)

			if status.Error != "" {
				out.Print("Error:      %s\n", status.Error)
			}

			if len(status.Results) > 0 {
				out.Println()
				printSummary(out, status.Results)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format: text, json, yaml, toml")

	return cmd
}

func newSimulateHistoryCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous simulations",
		Long: `List the simulations recorded for your account with their key
metrics.`,
		Example: `  qkdctl simulate history
  qkdctl simulate history -o json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			outFormat, err := output.ParseFormat(format)
			if err != nil {
				return clierrors.InvalidArgument(err.Error())
			}

			sess, _, err := newAuthenticatedSession()
			if err != nil {
				return err
			}

			history, err := sess.Client().History(cmd.Context())
			if err != nil {
				return clierrors.APIUnreachable(sess.Client().BaseURL(), err)
			}

			if outFormat != output.FormatText {
				return out.PrintFormat(outFormat, history)
			}

			if history.TotalSimulations == 0 {
				out.Muted("No simulations recorded yet")
				return nil
			}

			out.Print("Total simulations: %d\n\n", history.TotalSimulations)

			for _, sim := range history.Simulations {
				id, _ := sim["simulation_id"].(string)
				out.Print("  %s", id)

				if qber, ok := sim["qber"]; ok {
					out.Print("  qber=%v", qber)
				}

				if keyLen, ok := sim["final_key_length"]; ok {
					out.Print("  key=%v bits", keyLen)
				}

				out.Println()
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format: text, json, yaml, toml")

	return cmd
}

// printResult renders a terminal result payload in the chosen format.
func printResult(out *output.Writer, format output.Format, id string, result map[string]any) error {
	if format != output.FormatText {
		return out.PrintFormat(format, map[string]any{
			"simulation_id": id,
			"results":       result,
		})
	}

	if len(result) == 0 {
		out.Muted("No result payload returned")
		return nil
	}

	printSummary(out, result)

	return nil
}

// printSummary prints the well-known result fields first, then the rest.
func printSummary(out *output.Writer, result map[string]any) {
	known := []string{"qber", "final_key_length", "sifted_key_length", "key_rate", "attack_detected"}
	printed := map[string]bool{}

	for _, key := range known {
		if v, ok := result[key]; ok {
			out.Print("  %-18s %v\n", key, v)
			printed[key] = true
		}
	}

	for key, v := range result {
		if !printed[key] {
			out.Print("  %-18s %v\n", key, v)
		}
	}
}
