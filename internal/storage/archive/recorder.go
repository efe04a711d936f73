package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/newthinker/foresight/internal/core"
)

const rootPrefix = "predictions"

// Recorder writes predictions to Storage as JSON documents laid out as
// predictions/<SYMBOL>/<YYYY>/<MM>/<DD>/<timestamp>-<method>.json.
type Recorder struct {
	store  Storage
	logger *zap.Logger
}

// NewRecorder creates a recorder over store.
func NewRecorder(store Storage, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger}
}

// PathFor returns the archive path of a prediction.
func PathFor(rec *core.Prediction) string {
	ts := rec.ComputedAt.UTC()
	name := fmt.Sprintf("%s-%s.json", ts.Format("20060102T150405.000000000Z"), rec.Method)
	return path.Join(rootPrefix, rec.Symbol, ts.Format("2006/01/02"), name)
}

// Record stores rec and returns its path.
func (r *Recorder) Record(ctx context.Context, rec *core.Prediction) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encoding prediction: %w", err)
	}
	p := PathFor(rec)
	if err := r.store.Write(ctx, p, data); err != nil {
		return "", fmt.Errorf("archiving %s: %w", p, err)
	}
	r.logger.Debug("prediction archived", zap.String("symbol", rec.Symbol), zap.String("path", p))
	return p, nil
}

// History returns up to limit archived predictions for symbol, newest first.
// limit <= 0 returns all of them.
func (r *Recorder) History(ctx context.Context, symbol string, limit int) ([]*core.Prediction, error) {
	paths, err := r.store.List(ctx, path.Join(rootPrefix, symbol)+"/")
	if err != nil {
		return nil, fmt.Errorf("listing archive for %s: %w", symbol, err)
	}

	// file names start with a fixed-width UTC timestamp, so lexical order is chronological
	sort.Slice(paths, func(i, j int) bool { return path.Base(paths[i]) > path.Base(paths[j]) })
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}

	out := make([]*core.Prediction, 0, len(paths))
	for _, p := range paths {
		if !strings.HasSuffix(p, ".json") {
			continue
		}
		data, err := r.store.Read(ctx, p)
		if err != nil {
			return nil, err
		}
		var rec core.Prediction
		if err := json.Unmarshal(data, &rec); err != nil {
			r.logger.Warn("skipping unreadable archive entry", zap.String("path", p), zap.Error(err))
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}
