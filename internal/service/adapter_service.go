// internal/service/adapter_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"makino-adapter/internal/acquisition"
	"makino-adapter/internal/config"
	"makino-adapter/internal/model"
	"makino-adapter/internal/repository"
	"makino-adapter/internal/session"
	"makino-adapter/internal/utils"
	"makino-adapter/pkg/link"
)

var (
	// ErrNoSnapshot is returned before the first successful refresh
	ErrNoSnapshot = errors.New("no tool data snapshot published yet")

	// ErrHistoryDisabled is returned when snapshots are not persisted
	ErrHistoryDisabled = errors.New("snapshot history is disabled")

	// ErrMCodeNotRequested is returned when the modal M code does not belong to the current block
	ErrMCodeNotRequested = errors.New("no M code requested in the current block")

	// ErrInvalidWrite is returned for malformed tool data writes
	ErrInvalidWrite = errors.New("invalid tool data write")
)

// EventPublisher receives adapter events
type EventPublisher interface {
	PublishEvent(ctx context.Context, event model.AdapterEvent) error
}

// Status is the state reported by the health endpoints
type Status struct {
	MachineID   string         `json:"machine_id"`
	Backend     string         `json:"backend"`
	Session     session.Status `json:"session"`
	ToolCount   int            `json:"tool_count"`
	LastRefresh time.Time      `json:"last_refresh,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	Polling     bool           `json:"polling"`
}

// AdapterService is the host surface of the adapter: it drives acquisition cycles and publishes
// the last good snapshot
type AdapterService struct {
	negotiator *session.Negotiator
	acquirer   *acquisition.Acquirer
	bracket    acquisition.Bracket
	metrics    *Metrics
	repo       repository.SnapshotRepository
	cache      repository.SnapshotCache
	publishers []EventPublisher
	config     *config.Config
	backend    string
	logger     *utils.ServiceLogger
	audit      *utils.AuditLogger

	// refreshMu serialises every ProX channel exchange: acquisition cycles, machine reads and writes
	refreshMu sync.Mutex
	// pollMu serialises polls so that each owns the bracket from Start to Finish
	pollMu   sync.Mutex
	snapshot atomic.Pointer[model.ToolLifeData]
	machine  atomic.Pointer[model.MachineState]

	statusMu    sync.RWMutex
	lastRefresh time.Time
	lastError   error
	polling     atomic.Bool
}

// Option configures optional collaborators of the service
type Option func(*AdapterService)

// WithRepository enables snapshot persistence
func WithRepository(repo repository.SnapshotRepository) Option {
	return func(s *AdapterService) { s.repo = repo }
}

// WithCache enables the shared snapshot cache; the cache also receives events
func WithCache(cache repository.SnapshotCache) Option {
	return func(s *AdapterService) {
		s.cache = cache
		s.publishers = append(s.publishers, cache)
	}
}

// WithPublisher adds an event publisher
func WithPublisher(p EventPublisher) Option {
	return func(s *AdapterService) { s.publishers = append(s.publishers, p) }
}

// WithBackend names the controller backend in status reports
func WithBackend(name string) Option {
	return func(s *AdapterService) { s.backend = name }
}

// NewAdapterService creates the adapter service
func NewAdapterService(
	negotiator *session.Negotiator,
	metrics *Metrics,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *AdapterService {
	s := &AdapterService{
		negotiator: negotiator,
		acquirer:   acquisition.NewAcquirer(logger),
		metrics:    metrics,
		config:     cfg,
		logger:     utils.NewServiceLogger(logger, "adapter-service"),
		audit:      utils.NewAuditLogger(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AdapterService) machineID() string {
	return s.config.Controller.MachineID
}

// Refresh runs one acquisition cycle and publishes its snapshot. On error the previous snapshot
// stays published.
func (s *AdapterService) Refresh(ctx context.Context) (*model.ToolLifeData, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	start := time.Now()
	opLogger := utils.NewOperationLogger(s.logger.Logger, "refresh", uuid.NewString())

	sess, err := s.negotiator.EnsureProX(ctx)
	if err != nil {
		return nil, s.refreshFailed(ctx, opLogger, start, err)
	}

	opLogger.Start(zap.String("protocol_version", sess.Version().String()))
	data, err := s.acquirer.Run(ctx, sess, start)
	if err != nil {
		return nil, s.refreshFailed(ctx, opLogger, start, err)
	}

	s.snapshot.Store(data)
	s.statusMu.Lock()
	s.lastRefresh = data.AcquiredAt
	s.lastError = nil
	s.statusMu.Unlock()

	result := RefreshSuccess
	if data.Warning() != nil {
		result = RefreshPartial
	}
	if s.metrics != nil {
		s.metrics.ObserveRefresh(result, time.Since(start), data)
	}
	opLogger.Success(zap.Int("tools", data.ToolCount()), zap.Strings("missing", data.Missing))

	s.publish(ctx, model.NewAdapterEvent(model.EventSnapshotPublished, s.machineID(), "INFO", model.JSONObject{
		"protocol_version": data.ProtocolVersion,
		"tool_count":       data.ToolCount(),
		"missing_fields":   data.Missing,
		"acquired_at":      data.AcquiredAt,
	}))
	s.store(ctx, data)

	return data, nil
}

// refreshFailed records a failed cycle and returns err unchanged
func (s *AdapterService) refreshFailed(ctx context.Context, opLogger *utils.OperationLogger, start time.Time, err error) error {
	s.statusMu.Lock()
	s.lastError = err
	s.statusMu.Unlock()

	if errors.Is(err, link.ErrRetryDelayed) {
		s.logger.Debug("Refresh delayed by the connection cooldown", zap.Error(err))
		if s.metrics != nil {
			s.metrics.ObserveRefresh(RefreshDelayed, time.Since(start), nil)
		}
		return err
	}

	opLogger.Error(err)
	if s.metrics != nil {
		s.metrics.ObserveRefresh(RefreshFailed, time.Since(start), nil)
	}
	s.publish(ctx, model.NewAdapterEvent(model.EventRefreshFailed, s.machineID(), "ERROR", model.JSONObject{
		"error_message": err.Error(),
		"retryable":     session.IsRetryable(err),
		"kept_snapshot": s.snapshot.Load() != nil,
	}))
	return err
}

// store writes a published snapshot to the history and the cache. Failures are only logged.
func (s *AdapterService) store(ctx context.Context, data *model.ToolLifeData) {
	if s.repo != nil && s.config.Polling.PersistSnapshots {
		id, err := s.repo.Save(ctx, s.machineID(), data)
		if err != nil {
			s.logger.Error("Failed to persist snapshot", zap.Error(err))
		} else {
			s.logger.Debug("Snapshot persisted", zap.String("snapshot_id", id.String()))
			if limit := s.config.Polling.HistoryLimit; limit > 0 {
				if _, err := s.repo.Prune(ctx, s.machineID(), limit); err != nil {
					s.logger.Warn("Failed to prune snapshot history", zap.Error(err))
				}
			}
		}
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, s.machineID(), data); err != nil {
			s.logger.Warn("Failed to cache snapshot", zap.Error(err))
		}
	}
}

func (s *AdapterService) publish(ctx context.Context, event model.AdapterEvent) {
	for _, p := range s.publishers {
		if err := p.PublishEvent(ctx, event); err != nil {
			s.logger.Warn("Failed to publish event",
				zap.String("event_type", string(event.EventType)),
				zap.Error(err),
			)
		}
	}
}

// Restore publishes the last stored snapshot, from the cache first and then the history. It
// never replaces a snapshot acquired by this process.
func (s *AdapterService) Restore(ctx context.Context) error {
	if s.snapshot.Load() != nil {
		return nil
	}

	var data *model.ToolLifeData
	var err error
	if s.cache != nil {
		data, err = s.cache.Get(ctx, s.machineID())
	}
	if data == nil && s.repo != nil {
		data, err = s.repo.Latest(ctx, s.machineID())
	}
	if data == nil {
		if err == nil || errors.Is(err, repository.ErrSnapshotNotFound) {
			return nil
		}
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}

	if s.snapshot.CompareAndSwap(nil, data) {
		s.logger.Info("Restored stored snapshot",
			zap.Int("tools", data.ToolCount()),
			zap.Time("acquired_at", data.AcquiredAt),
		)
	}
	return nil
}

// Snapshot returns the last good snapshot, or nil before the first one
func (s *AdapterService) Snapshot() *model.ToolLifeData {
	return s.snapshot.Load()
}

// RegisteredToolNumber returns the number of tool positions in the last good snapshot
func (s *AdapterService) RegisteredToolNumber() int {
	return s.snapshot.Load().ToolCount()
}

// Positions returns the position labels of the last good snapshot
func (s *AdapterService) Positions() []string {
	return s.snapshot.Load().PositionLabels()
}

// SpindleTool reads the tool mounted on the spindle
func (s *AdapterService) SpindleTool(ctx context.Context) (link.SpindleTool, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	sess, err := s.negotiator.EnsureProX(ctx)
	if err != nil {
		return link.SpindleTool{}, err
	}
	return sess.SpindleTool(ctx)
}

// ToolNumber returns the PTN of the spindle tool
func (s *AdapterService) ToolNumber(ctx context.Context) (uint32, error) {
	tool, err := s.SpindleTool(ctx)
	if err != nil {
		return 0, err
	}
	return tool.PTN, nil
}

// PalletNumber returns the pallet on the machine table
func (s *AdapterService) PalletNumber(ctx context.Context) (uint32, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	sess, err := s.negotiator.EnsureProX(ctx)
	if err != nil {
		return 0, err
	}
	return sess.PalletNumber(ctx)
}

// mcode reads the modal M code once per poll
func (s *AdapterService) mcode(ctx context.Context) (link.MCode, error) {
	return s.bracket.MCode(ctx, func(ctx context.Context) (link.MCode, error) {
		cnc, err := s.negotiator.EnsureCnc(ctx)
		if err != nil {
			return link.MCode{}, err
		}
		return cnc.ModalMCode(ctx)
	})
}

// LastMCode returns the modal M code of the Cnc side
func (s *AdapterService) LastMCode(ctx context.Context) (uint32, error) {
	code, err := s.mcode(ctx)
	if err != nil {
		return 0, err
	}
	return code.Code, nil
}

// CurrentBlockMCode returns the M code of the block being executed
func (s *AdapterService) CurrentBlockMCode(ctx context.Context) (uint32, error) {
	code, err := s.mcode(ctx)
	if err != nil {
		return 0, err
	}
	if !code.Requested {
		return 0, ErrMCodeNotRequested
	}
	return code.Code, nil
}

// MCode returns the modal M code with its request flag
func (s *AdapterService) MCode(ctx context.Context) (link.MCode, error) {
	return s.mcode(ctx)
}

// Poll runs one host cycle: it opens the bracket, refreshes the tool data, reads the machine
// state and closes the bracket. The ProX machine values are only read after a successful refresh.
// Concurrent polls run one after the other.
func (s *AdapterService) Poll(ctx context.Context) (*model.ToolLifeData, error) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	s.bracket.Start()
	defer s.bracket.Finish()

	data, err := s.Refresh(ctx)
	s.readMachineState(ctx, err == nil)
	return data, err
}

func (s *AdapterService) readMachineState(ctx context.Context, prox bool) {
	state := &model.MachineState{ReadAt: time.Now()}

	if prox {
		if tool, err := s.SpindleTool(ctx); err != nil {
			state.Fail("spindle_tool", err)
		} else {
			state.SpindleTool = &tool
		}
		if pallet, err := s.PalletNumber(ctx); err != nil {
			state.Fail("pallet", err)
		} else {
			state.Pallet = &pallet
		}
	}
	if code, err := s.mcode(ctx); err != nil {
		state.Fail("mcode", err)
	} else {
		state.MCode = &code
	}

	if len(state.Errors) > 0 {
		s.logger.Debug("Machine state incomplete", zap.Any("errors", state.Errors))
	}
	s.machine.Store(state)
}

// MachineAlarms reads the active machine alarms and warnings of the ProX side. Numbers are
// returned as reported; NC range alarms are left to CncAlarms.
func (s *AdapterService) MachineAlarms(ctx context.Context) ([]model.Alarm, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	sess, err := s.negotiator.EnsureProX(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := sess.McAlarms(ctx)
	if err != nil {
		return nil, err
	}

	version := sess.Version().String()
	alarms := make([]model.Alarm, 0, len(raw))
	for _, a := range raw {
		alarm, ok := model.NewMachineAlarm(a, version)
		if !ok {
			s.logger.Debug("Machine alarm skipped", zap.Uint32("number", a.Number), zap.Uint8("type", a.Type))
			continue
		}
		alarms = append(alarms, alarm)
	}
	return alarms, nil
}

// CncAlarms reads the active alarms of the Cnc side
func (s *AdapterService) CncAlarms(ctx context.Context) ([]model.Alarm, error) {
	cnc, err := s.negotiator.EnsureCnc(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := cnc.CncAlarms(ctx)
	if err != nil {
		return nil, err
	}

	version := s.negotiator.Status().ProXVersion
	alarms := make([]model.Alarm, len(raw))
	for i, a := range raw {
		alarms[i] = model.NewCncAlarm(a, version)
	}
	return alarms, nil
}

// Alarms reads the alarms of both channels. A channel that cannot be read is reported in
// Errors and does not hide the other one; the error is only set when neither channel answers.
func (s *AdapterService) Alarms(ctx context.Context) (*model.AlarmList, error) {
	list := &model.AlarmList{}
	machine, proxErr := s.MachineAlarms(ctx)
	if proxErr != nil {
		list.Fail(string(link.ChannelProX), proxErr)
	} else {
		list.Machine = machine
	}
	cnc, cncErr := s.CncAlarms(ctx)
	if cncErr != nil {
		list.Fail(string(link.ChannelCnc), cncErr)
	} else {
		list.Cnc = cnc
	}
	if proxErr != nil && cncErr != nil {
		return nil, proxErr
	}
	return list, nil
}

// MachineState returns the machine values of the last poll, or nil before the first one
func (s *AdapterService) MachineState() *model.MachineState {
	return s.machine.Load()
}

// SetToolItem writes one item to the given positions. Tool items take (magazine, pot) positions,
// cutter items also use the cutter number.
func (s *AdapterService) SetToolItem(ctx context.Context, item link.ItemCode, positions []link.ToolPosition, values []int32, requestID string) error {
	if len(positions) == 0 {
		return fmt.Errorf("%w: no positions", ErrInvalidWrite)
	}
	if len(values) != len(positions) {
		return fmt.Errorf("%w: %d values for %d positions", ErrInvalidWrite, len(values), len(positions))
	}
	if err := validatePositions(positions); err != nil {
		return err
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	sess, err := s.negotiator.EnsureProX(ctx)
	if err != nil {
		return err
	}
	itemName := link.ItemName(sess.Version(), item)
	err = sess.WriteItems(ctx, item, positions, values)
	s.audit.LogToolDataWrite(s.machineID(), itemName, len(positions), requestID, err == nil)
	if s.metrics != nil {
		s.metrics.ObserveWrite(err == nil)
	}
	if err != nil {
		utils.LogError(utils.LoggerWithRequestID(s.logger.Logger, requestID), "Tool data write failed", err,
			zap.String("item", itemName))
		return err
	}

	s.publish(ctx, model.NewAdapterEvent(model.EventToolDataWritten, s.machineID(), "INFO", model.JSONObject{
		"item":       itemName,
		"positions":  len(positions),
		"request_id": requestID,
	}))
	return nil
}

// ClearToolData clears every item of the tools in the given positions
func (s *AdapterService) ClearToolData(ctx context.Context, positions []link.ToolPosition, requestID string) error {
	if len(positions) == 0 {
		return fmt.Errorf("%w: no positions", ErrInvalidWrite)
	}
	if err := validatePositions(positions); err != nil {
		return err
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	sess, err := s.negotiator.EnsureProX(ctx)
	if err != nil {
		return err
	}
	err = sess.ClearToolData(ctx, positions)
	s.audit.LogToolDataWrite(s.machineID(), "ClearToolData", len(positions), requestID, err == nil)
	if s.metrics != nil {
		s.metrics.ObserveWrite(err == nil)
	}
	if err != nil {
		utils.LogError(utils.LoggerWithRequestID(s.logger.Logger, requestID), "Tool data clear failed", err,
			zap.Int("positions", len(positions)))
		return err
	}

	s.publish(ctx, model.NewAdapterEvent(model.EventToolDataWritten, s.machineID(), "INFO", model.JSONObject{
		"item":       "ClearToolData",
		"positions":  len(positions),
		"request_id": requestID,
	}))
	return nil
}

// validatePositions rejects positions outside the 1-based controller numbering
func validatePositions(positions []link.ToolPosition) error {
	for i, p := range positions {
		if p.Magazine < 1 || p.Pot < 1 || p.Cutter < 1 {
			return fmt.Errorf("%w: position %d (%s) is not 1-based", ErrInvalidWrite, i, p)
		}
	}
	return nil
}

// Properties dumps every readable item of every position
func (s *AdapterService) Properties(ctx context.Context) (*model.ItemProperties, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	sess, err := s.negotiator.EnsureProX(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := acquisition.EnumeratePositions(ctx, sess, s.logger.Logger)
	if err != nil {
		return nil, err
	}
	return s.acquirer.ReadProperties(ctx, sess, positions)
}

// History lists the stored snapshots, newest first
func (s *AdapterService) History(ctx context.Context, limit, offset int) ([]*repository.SnapshotSummary, int, error) {
	if s.repo == nil {
		return nil, 0, ErrHistoryDisabled
	}
	return s.repo.List(ctx, s.machineID(), limit, offset)
}

// Status returns the connection and refresh state
func (s *AdapterService) Status() Status {
	st := Status{
		MachineID: s.machineID(),
		Backend:   s.backend,
		Session:   s.negotiator.Status(),
		ToolCount: s.RegisteredToolNumber(),
		Polling:   s.polling.Load(),
	}
	s.statusMu.RLock()
	st.LastRefresh = s.lastRefresh
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	s.statusMu.RUnlock()
	return st
}

// StartPolling polls at the configured interval until ctx is done
func (s *AdapterService) StartPolling(ctx context.Context) {
	interval := s.config.Polling.Interval
	s.logger.Info("Polling started", zap.Duration("interval", interval))
	s.polling.Store(true)
	defer s.polling.Store(false)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Polling stopped")
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *AdapterService) pollOnce(ctx context.Context) {
	if _, err := s.Poll(ctx); err != nil && !errors.Is(err, link.ErrRetryDelayed) && ctx.Err() == nil {
		s.logger.Warn("Poll failed", zap.Error(err), zap.Bool("retryable", session.IsRetryable(err)))
	}
}

// Close frees both controller handles
func (s *AdapterService) Close(ctx context.Context) error {
	return s.negotiator.Close(ctx)
}

// ProbeAttempt forwards a probe attempt to the metrics
func (s *AdapterService) ProbeAttempt(version link.Version, code link.ResultCode, wrongVersion bool) {
	if s.metrics != nil {
		s.metrics.ProbeAttempt(version, code, wrongVersion)
	}
}

// Connected records a new session and publishes it
func (s *AdapterService) Connected(channel link.Channel, version link.Version) {
	if s.metrics != nil {
		s.metrics.Connected(channel, version)
	}
	s.publish(context.Background(), model.NewAdapterEvent(model.EventSessionConnected, s.machineID(), "INFO", model.JSONObject{
		"channel": string(channel),
		"version": version.String(),
	}))
}

// Disconnected records a session teardown and publishes it
func (s *AdapterService) Disconnected(channel link.Channel) {
	if s.metrics != nil {
		s.metrics.Disconnected(channel)
	}
	s.publish(context.Background(), model.NewAdapterEvent(model.EventSessionDisconnected, s.machineID(), "WARNING", model.JSONObject{
		"channel": string(channel),
	}))
}

// Throttled forwards a refused connection attempt to the metrics
func (s *AdapterService) Throttled(channel link.Channel) {
	if s.metrics != nil {
		s.metrics.Throttled(channel)
	}
}
