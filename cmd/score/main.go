// Command score runs a CSV of patient records through one model.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"heartrisk/logging"
	"heartrisk/predict"
	"heartrisk/registry"
)

// targetColumn, when present in the input, holds the true class of each row.
const targetColumn = "target"

type summary struct {
	rows      int
	failed    int
	labelled  int
	correct   int
	truePos   int
	predPos   int
	actualPos int
}

func (s summary) metrics() (accuracy, precision, recall float64) {
	if s.labelled == 0 {
		return 0, 0, 0
	}
	accuracy = float64(s.correct) / float64(s.labelled)
	if s.predPos > 0 {
		precision = float64(s.truePos) / float64(s.predPos)
	}
	if s.actualPos > 0 {
		recall = float64(s.truePos) / float64(s.actualPos)
	}
	return accuracy, precision, recall
}

func main() {
	modelsDir := flag.String("models", "./models", "directory of model artifacts")
	model := flag.String("model", "", "model to score with, e.g. \"Logistic Regression\"")
	input := flag.String("input", "", "input CSV with a header of record fields (default stdin)")
	output := flag.String("output", "", "output CSV (default stdout)")
	encoding := flag.String("encoding", "", "encoding for artifacts that do not name one")
	variantList := flag.String("variants", "", "variant dirs as dir=Label pairs, e.g. \"optimize_pca=PCA\"")
	logLevel := flag.String("log_level", "warn", "log level")
	flag.Parse()

	if *model == "" {
		log.Fatal("model is required")
	}
	variants, err := parseVariants(*variantList)
	if err != nil {
		log.Fatalf("invalid -variants: %v", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = *logLevel
	logCfg.Format = "console"
	logger, err := logging.New(logCfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	holder := registry.NewHolder(func() (*registry.Registry, error) {
		return registry.LoadDir(registry.LoaderConfig{Dir: *modelsDir, DefaultEncoding: *encoding, Variants: variants}, logger)
	}, logger)
	if err := holder.Reload(); err != nil {
		log.Fatalf("failed to load models: %v", err)
	}
	svc := predict.New(holder, logger)

	in := io.Reader(os.Stdin)
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatalf("failed to open input: %v", err)
		}
		defer f.Close()
		in = f
	}
	out := io.Writer(os.Stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("failed to create output: %v", err)
		}
		defer f.Close()
		out = f
	}

	s, err := scoreCSV(context.Background(), svc, *model, in, out)
	if err != nil {
		log.Fatalf("scoring failed: %v", err)
	}
	logger.Info("scoring finished", zap.Int("rows", s.rows), zap.Int("failed", s.failed))
	if s.labelled > 0 {
		accuracy, precision, recall := s.metrics()
		fmt.Fprintf(os.Stderr, "rows=%d failed=%d accuracy=%.2f precision=%.2f recall=%.2f\n",
			s.rows, s.failed, accuracy, precision, recall)
	}
}

func parseVariants(list string) ([]registry.Variant, error) {
	var variants []registry.Variant
	for _, pair := range strings.Split(list, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		dir, label, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(dir) == "" || strings.TrimSpace(label) == "" {
			return nil, fmt.Errorf("%q is not dir=Label", pair)
		}
		variants = append(variants, registry.Variant{Dir: strings.TrimSpace(dir), Label: strings.TrimSpace(label)})
	}
	return variants, nil
}

// scoreCSV writes one output row per input row. Rows that fail keep going and carry the error.
func scoreCSV(ctx context.Context, svc *predict.Service, model string, in io.Reader, out io.Writer) (summary, error) {
	var s summary
	r := csv.NewReader(in)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return s, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	w := csv.NewWriter(out)
	if err := w.Write([]string{"row", "predicted_class", "prediction_label", "probability_score_class_1", "error"}); err != nil {
		return s, err
	}

	for line := 1; ; line++ {
		values, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s, fmt.Errorf("read row %d: %w", line, err)
		}
		s.rows++

		patient := make(map[string]interface{}, len(header))
		target := ""
		for i, name := range header {
			if i >= len(values) || values[i] == "" {
				continue
			}
			if name == targetColumn {
				target = values[i]
				continue
			}
			patient[name] = values[i]
		}

		result, err := svc.Predict(ctx, predict.Request{Model: model, Patient: patient})
		if err != nil {
			if errors.Is(err, registry.ErrModelNotFound) || errors.Is(err, registry.ErrEmpty) {
				return s, err
			}
			s.failed++
			if err := w.Write([]string{strconv.Itoa(line), "", "", "", err.Error()}); err != nil {
				return s, err
			}
			continue
		}
		s.track(target, result.PredictedClass)
		if err := w.Write([]string{
			strconv.Itoa(line),
			strconv.Itoa(result.PredictedClass),
			result.Label,
			strconv.FormatFloat(result.Probability, 'f', 6, 64),
			"",
		}); err != nil {
			return s, err
		}
	}
	w.Flush()
	return s, w.Error()
}

func (s *summary) track(target string, predicted int) {
	actual, err := strconv.Atoi(strings.TrimSpace(target))
	if err != nil {
		return
	}
	s.labelled++
	if actual == predicted {
		s.correct++
	}
	if predicted == 1 {
		s.predPos++
	}
	if actual == 1 {
		s.actualPos++
		if predicted == 1 {
			s.truePos++
		}
	}
}
