package persistence

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"dipsim/internal/models"

	"github.com/dgraph-io/badger/v3"
)

const barKeyPrefix = "bars/"

// badgerRepository is the BadgerDB implementation of Repository.
type badgerRepository struct {
	db       *badger.DB
	stateKey []byte
}

// NewBadgerRepository opens (or creates) a BadgerDB database at dbPath.
// An empty path opens an in-memory database.
func NewBadgerRepository(dbPath string) (Repository, error) {
	opts := badger.DefaultOptions(dbPath)
	if dbPath == "" {
		opts = opts.WithInMemory(true)
	}
	// Errors are still returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerRepository{
		db:       db,
		stateKey: []byte("run_state"),
	}, nil
}

// SaveState atomically saves the entire run state as JSON.
func (r *badgerRepository) SaveState(state *models.RunState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return r.set(r.stateKey, data)
}

// LoadState returns (nil, nil) when no run has been saved yet.
func (r *badgerRepository) LoadState() (*models.RunState, error) {
	var state models.RunState
	found, err := r.get(r.stateKey, &state)
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

// SaveBars replaces the cached series of one source and symbol.
func (r *badgerRepository) SaveBars(series *models.CachedSeries) error {
	data, err := json.Marshal(toWire(series))
	if err != nil {
		return err
	}
	return r.set(barKey(series.Source, series.Symbol), data)
}

func (r *badgerRepository) LoadBars(source, symbol string) (*models.CachedSeries, error) {
	var w wireSeries
	found, err := r.get(barKey(source, symbol), &w)
	if err != nil || !found {
		return nil, err
	}
	return fromWire(&w), nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}

func (r *badgerRepository) set(key, val []byte) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// get decodes the JSON value under key into v. A missing key is not an error.
func (r *badgerRepository) get(key []byte, v any) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("value is empty in database")
			}
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func barKey(source, symbol string) []byte {
	return []byte(barKeyPrefix + source + "/" + symbol)
}

// wireBar is DailyBar with NaN prices encoded as null, which encoding/json
// cannot represent as float64.
type wireBar struct {
	Date   string   `json:"d"`
	Open   *float64 `json:"o"`
	High   *float64 `json:"h"`
	Low    *float64 `json:"l"`
	Close  *float64 `json:"c"`
	Volume *float64 `json:"v"`
}

type wireSeries struct {
	Source    string    `json:"source"`
	Symbol    string    `json:"symbol"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	FetchedAt time.Time `json:"fetched_at"`
	Bars      []wireBar `json:"bars"`
}

func toWire(s *models.CachedSeries) *wireSeries {
	w := &wireSeries{
		Source:    s.Source,
		Symbol:    s.Symbol,
		Start:     s.Start,
		End:       s.End,
		FetchedAt: s.FetchedAt,
		Bars:      make([]wireBar, len(s.Bars)),
	}
	for i, b := range s.Bars {
		w.Bars[i] = wireBar{
			Date:   b.DateString(),
			Open:   nullable(b.Open),
			High:   nullable(b.High),
			Low:    nullable(b.Low),
			Close:  nullable(b.Close),
			Volume: nullable(b.Volume),
		}
	}
	return w
}

func fromWire(w *wireSeries) *models.CachedSeries {
	s := &models.CachedSeries{
		Source:    w.Source,
		Symbol:    w.Symbol,
		Start:     w.Start,
		End:       w.End,
		FetchedAt: w.FetchedAt,
		Bars:      make([]models.DailyBar, 0, len(w.Bars)),
	}
	for _, b := range w.Bars {
		date, err := time.Parse(models.DateLayout, b.Date)
		if err != nil {
			continue
		}
		s.Bars = append(s.Bars, models.DailyBar{
			Symbol: w.Symbol,
			Date:   date,
			Open:   orNaN(b.Open),
			High:   orNaN(b.High),
			Low:    orNaN(b.Low),
			Close:  orNaN(b.Close),
			Volume: orNaN(b.Volume),
		})
	}
	return s
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
