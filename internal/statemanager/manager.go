package statemanager

import (
	"sync"
	"time"

	"dipsim/internal/models"
	"dipsim/internal/persistence"

	"go.uber.org/zap"
)

// EventType defines the type of a normalized event
type EventType int

const (
	StateResetEvent EventType = iota
	SymbolUpdateEvent
	RunFinishedEvent
)

// NormalizedEvent is a standardized internal representation of an event
type NormalizedEvent struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// SymbolUpdateEventData replaces the progress of one symbol.
type SymbolUpdateEventData struct {
	State models.SymbolState
}

// RunFinishedEventData closes the run with a final status.
type RunFinishedEventData struct {
	Status string
}

// StateManager is responsible for all run state mutations and persistence.
// It ensures that all state changes are processed serially.
type StateManager struct {
	mu              sync.RWMutex
	state           *models.RunState
	repo            persistence.StateRepository
	eventChannel    chan NormalizedEvent
	persistenceChan chan *models.RunState
	stopChan        chan struct{}
	wg              sync.WaitGroup
	logger          *zap.Logger
}

// NewStateManager creates a new StateManager.
func NewStateManager(initialState *models.RunState, repo persistence.StateRepository, logger *zap.Logger) *StateManager {
	return &StateManager{
		state:           initialState,
		repo:            repo,
		eventChannel:    make(chan NormalizedEvent, 1024),
		persistenceChan: make(chan *models.RunState, 128),
		stopChan:        make(chan struct{}),
		logger:          logger,
	}
}

// Start begins the state manager's event processing and persistence loops.
func (sm *StateManager) Start() {
	sm.wg.Add(2)
	go sm.eventLoop()
	go sm.persistenceLoop()
	sm.logger.Debug("StateManager started.")
}

// Stop processes the events already dispatched, waits until every resulting
// snapshot is saved and shuts the loops down.
func (sm *StateManager) Stop() {
	close(sm.stopChan)
	sm.wg.Wait()
	sm.logger.Debug("StateManager stopped.")
}

// DispatchEvent sends an event to the StateManager for processing.
func (sm *StateManager) DispatchEvent(event NormalizedEvent) {
	sm.eventChannel <- event
}

// UpdateSymbol is a shorthand for dispatching a SymbolUpdateEvent.
func (sm *StateManager) UpdateSymbol(state models.SymbolState) {
	sm.DispatchEvent(NormalizedEvent{Type: SymbolUpdateEvent, Timestamp: time.Now(), Data: SymbolUpdateEventData{State: state}})
}

// Finish is a shorthand for dispatching a RunFinishedEvent.
func (sm *StateManager) Finish(status string) {
	sm.DispatchEvent(NormalizedEvent{Type: RunFinishedEvent, Timestamp: time.Now(), Data: RunFinishedEventData{Status: status}})
}

// GetStateSnapshot returns a deep copy of the current state for safe, concurrent reading.
func (sm *StateManager) GetStateSnapshot() *models.RunState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return deepCopy(sm.state)
}

// deepCopy copies the run state so snapshots never share maps or slices.
func deepCopy(state *models.RunState) *models.RunState {
	if state == nil {
		return nil
	}

	stateCopy := *state
	if state.Levels != nil {
		stateCopy.Levels = make([]float64, len(state.Levels))
		copy(stateCopy.Levels, state.Levels)
	}
	if state.Symbols != nil {
		stateCopy.Symbols = make(map[string]*models.SymbolState, len(state.Symbols))
		for k, v := range state.Symbols {
			if v != nil {
				symbolCopy := *v
				stateCopy.Symbols[k] = &symbolCopy
			}
		}
	}
	return &stateCopy
}

// eventLoop handles all incoming events serially. On stop it drains the
// events already queued before closing the persistence channel.
func (sm *StateManager) eventLoop() {
	defer sm.wg.Done()
	defer close(sm.persistenceChan)
	for {
		select {
		case event := <-sm.eventChannel:
			sm.processEvent(event)
		case <-sm.stopChan:
			for {
				select {
				case event := <-sm.eventChannel:
					sm.processEvent(event)
				default:
					return
				}
			}
		}
	}
}

// persistenceLoop saves state snapshots until the event loop closes the channel.
func (sm *StateManager) persistenceLoop() {
	defer sm.wg.Done()
	for stateToSave := range sm.persistenceChan {
		if sm.repo == nil {
			continue
		}
		if err := sm.repo.SaveState(stateToSave); err != nil {
			sm.logger.Sugar().Errorf("Failed to save run state: %v", err)
		}
	}
}

// processEvent mutates the state based on an event.
func (sm *StateManager) processEvent(event NormalizedEvent) {
	sm.mu.Lock()
	switch event.Type {
	case StateResetEvent:
		if newState, ok := event.Data.(*models.RunState); ok {
			sm.state = newState
			sm.logger.Sugar().Debugf("Run state reset to %s.", newState.RunID)
		} else {
			sm.logger.Sugar().Warnf("Received StateResetEvent with unexpected data type: %T", event.Data)
		}
	case SymbolUpdateEvent:
		if data, ok := event.Data.(SymbolUpdateEventData); ok {
			sm.handleSymbolUpdate(data.State, event.Timestamp)
		} else {
			sm.logger.Sugar().Warnf("Received SymbolUpdateEvent with unexpected data type: %T", event.Data)
		}
	case RunFinishedEvent:
		if data, ok := event.Data.(RunFinishedEventData); ok && sm.state != nil {
			sm.state.Status = data.Status
			sm.state.FinishedAt = event.Timestamp
		} else if !ok {
			sm.logger.Sugar().Warnf("Received RunFinishedEvent with unexpected data type: %T", event.Data)
		}
	}

	if sm.state == nil {
		sm.mu.Unlock()
		return
	}
	sm.state.LastUpdateTime = time.Now()
	stateCopy := deepCopy(sm.state)
	sm.mu.Unlock()

	// After processing, send a deep copy of the new state to the persistence channel.
	sm.persistenceChan <- stateCopy
}

func (sm *StateManager) handleSymbolUpdate(update models.SymbolState, at time.Time) {
	if sm.state == nil {
		sm.logger.Sugar().Warnf("Received update for %s before any run state.", update.Symbol)
		return
	}
	if sm.state.Symbols == nil {
		sm.state.Symbols = make(map[string]*models.SymbolState)
	}
	update.LastUpdateTime = at
	sm.state.Symbols[update.Symbol] = &update
}
