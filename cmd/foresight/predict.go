package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/foresight/internal/app"
	"github.com/newthinker/foresight/internal/core"
	"github.com/newthinker/foresight/internal/forecast"
)

var (
	predictDays   int
	predictSimple bool
	predictEvery  int
	predictJSON   bool
)

var predictCmd = &cobra.Command{
	Use:   "predict SYMBOL",
	Short: "Forecast a symbol and print the projected path",
	Args:  cobra.ExactArgs(1),
	RunE:  runPredict,
}

func init() {
	predictCmd.Flags().IntVar(&predictDays, "days", 30, "Forecast horizon in business days (1-365)")
	predictCmd.Flags().BoolVar(&predictSimple, "simple", false, "Use the heuristic forecast instead of the ensemble")
	predictCmd.Flags().IntVar(&predictEvery, "every", 5, "Print every Nth path point")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "Print the prediction as JSON")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.RequestTimeout)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialising app: %w", err)
	}
	defer a.Close()

	predict := a.Service().Predict
	if predictSimple {
		predict = a.Service().PredictSimple
	}

	start := time.Now()
	res, err := predict(ctx, args[0], predictDays)
	if err != nil {
		return fmt.Errorf("forecasting %s: %w", args[0], err)
	}
	log.Debug("forecast ready", zap.String("symbol", res.Prediction.Symbol), zap.Duration("duration", time.Since(start)))

	out := cmd.OutOrStdout()
	if predictJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Prediction)
	}
	return renderPrediction(out, res, predictEvery)
}

// renderPrediction prints a summary followed by every step-th path point and
// always the final one.
func renderPrediction(out io.Writer, res *forecast.Result, step int) error {
	p := res.Prediction
	if step < 1 {
		step = 1
	}

	fmt.Fprintf(out, "Symbol:           %s (%s)\n", p.Symbol, p.Method)
	fmt.Fprintf(out, "Current price:    %.2f\n", p.CurrentPrice)
	fmt.Fprintf(out, "Horizon price:    %.2f (%+.2f%%) after %d days\n", p.PredictedPrice, 100*p.PredictedReturn, p.Horizon)
	fmt.Fprintf(out, "Trend:            %s\n", p.Trend)
	if p.Method == core.MethodHeuristic {
		fmt.Fprintf(out, "Trend score:      %+.1f\n", p.TrendScore)
	} else {
		fmt.Fprintf(out, "Confidence:       %.1f\n", p.ConfidenceScore)
		fmt.Fprintf(out, "Model accuracy:   %.3f\n", p.ModelAccuracy)
	}
	fmt.Fprintf(out, "Daily volatility: %.4f\n\n", p.Volatility)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tDATE\tPRICE\tLOWER\tUPPER\t")
	fmt.Fprintln(w, "---\t----\t-----\t-----\t-----\t")
	for i, pt := range p.Path {
		day := i + 1
		if day%step != 0 && day != len(p.Path) {
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\t%.2f\t\n",
			day, pt.Date.Format("2006-01-02"), pt.Price, pt.LowerBound, pt.UpperBound)
	}
	return w.Flush()
}
