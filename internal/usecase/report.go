package usecase

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	applogger "Aurelius/pkg/logger"
)

const (
	reportSuccessFile = "lastrun.success.json"
	reportFailedFile  = "lastrun.failed.json"
)

// UnitReport identifies one ingestion unit in the run report.
type UnitReport struct {
	Database string `json:"database"`
	Table    string `json:"table"`
	Ticker   string `json:"ticker"`
	From     string `json:"from"`
	To       string `json:"to"`
	Rows     int64  `json:"rows,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// WriteRunReport stores succeeded and failed units under dir so that failed
// units can be re-run with `ingest -database -table -ticker -from -to`.
func WriteRunReport(dir string, succeeded, failed []UnitReport, l *applogger.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if succeeded == nil {
		succeeded = []UnitReport{}
	}
	if failed == nil {
		failed = []UnitReport{}
	}
	for _, f := range []struct {
		name  string
		units []UnitReport
	}{
		{reportSuccessFile, succeeded},
		{reportFailedFile, failed},
	} {
		p := filepath.Join(dir, f.name)
		data, err := json.MarshalIndent(f.units, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return fmt.Errorf("write report %s: %w", p, err)
		}
		l.Info("run report written", applogger.String("path", p), applogger.Int("units", len(f.units)))
	}
	return nil
}
