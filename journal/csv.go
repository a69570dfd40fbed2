package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"insiderflow/logger"
	"insiderflow/models"
)

const (
	tradesFile = "trades.csv"
	closesFile = "closed_trades.csv"
)

var (
	tradesHeader = []string{"utc_time", "ticker", "form", "qty", "broker_order_id"}
	closesHeader = []string{"utc_exit", "symbol", "qty", "entry_price", "exit_price", "pnl_dollars", "reason"}
)

// CSVJournal appends audit records to CSV files under a directory. Files
// get their header on first write. The journal is write-only; nothing in
// the trading path reads these files back.
type CSVJournal struct {
	dir string
	mu  sync.Mutex
	log *logger.Log
}

func NewCSV(dir string) (*CSVJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory %s: %w", dir, err)
	}
	return &CSVJournal{dir: dir, log: logger.GetLogger()}, nil
}

// LogTrade appends an entry record to trades.csv.
func (j *CSVJournal) LogTrade(entry models.TradeLogEntry) error {
	record := []string{
		entry.UTCTime.UTC().Format(time.RFC3339),
		entry.Ticker,
		string(entry.Form),
		strconv.Itoa(entry.Qty),
		entry.BrokerOrderID,
	}
	return j.appendRecord(tradesFile, tradesHeader, record)
}

// LogClose appends an exit record to closed_trades.csv.
func (j *CSVJournal) LogClose(entry models.CloseLogEntry) error {
	record := []string{
		entry.UTCExit.UTC().Format(time.RFC3339),
		entry.Symbol,
		strconv.Itoa(entry.Qty),
		formatPrice(entry.EntryPrice),
		formatPrice(entry.ExitPrice),
		formatPrice(entry.PnLDollars),
		string(entry.Reason),
	}
	return j.appendRecord(closesFile, closesHeader, record)
}

// TradesPath returns the path of the entry audit file.
func (j *CSVJournal) TradesPath() string {
	return filepath.Join(j.dir, tradesFile)
}

// ClosesPath returns the path of the exit audit file.
func (j *CSVJournal) ClosesPath() string {
	return filepath.Join(j.dir, closesFile)
}

func (j *CSVJournal) appendRecord(name string, header, record []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	path := filepath.Join(j.dir, name)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("failed to write header to %s: %w", path, err)
		}
	}
	if err := writer.Write(record); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return file.Sync()
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
