package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"makino-adapter/internal/config"
	"makino-adapter/internal/controller/emulator"
	"makino-adapter/internal/middleware"
	"makino-adapter/internal/model"
	"makino-adapter/internal/service"
	"makino-adapter/internal/session"
	"makino-adapter/pkg/link"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Details string `json:"details"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

type testServer struct {
	router *gin.Engine
	svc    *service.AdapterService
	emu    *emulator.Controller
}

func newTestServer(t *testing.T, delay time.Duration) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	emu := emulator.Demo(link.Version6, false)
	negotiator := session.NewNegotiator(emu, session.NewThrottle(delay), session.Options{MachineID: "test"}, zap.NewNop())
	cfg := &config.Config{
		App:        config.AppConfig{Name: "makino-adapter", Version: "test", Environment: "test"},
		Controller: config.ControllerConfig{MachineID: "test"},
	}
	svc := service.NewAdapterService(negotiator, service.NewMetrics(prometheus.NewRegistry()), cfg, zap.NewNop())
	negotiator.SetObserver(svc)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	NewHealthHandler(svc, nil, nil, cfg, zap.NewNop()).RegisterRoutes(router)
	api := router.Group("/api/v1")
	NewToolHandler(svc, zap.NewNop()).RegisterRoutes(api)
	NewMachineHandler(svc, zap.NewNop()).RegisterRoutes(api)

	return &testServer{router: router, svc: svc, emu: emu}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestGetSnapshot_NotFoundBeforeRefresh(t *testing.T) {
	s := newTestServer(t, 0)

	w, env := s.do(t, http.MethodGet, "/api/v1/tools", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
	assert.NotEmpty(t, env.RequestID)
}

func TestRefreshAndRead(t *testing.T) {
	s := newTestServer(t, 0)

	w, env := s.do(t, http.MethodPost, "/api/v1/tools/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data model.ToolLifeData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Pro6", data.ProtocolVersion)
	assert.Len(t, data.Tools, 10)

	w, env = s.do(t, http.MethodGet, "/api/v1/tools?tool_number=102", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var filtered struct {
		Tools []model.ToolRecord `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &filtered))
	require.Len(t, filtered.Tools, 1)
	assert.Equal(t, int32(2), filtered.Tools[0].Pot)

	w, env = s.do(t, http.MethodGet, "/api/v1/tools/count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":10}`, string(env.Data))

	w, env = s.do(t, http.MethodGet, "/api/v1/tools/positions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var positions struct {
		Positions []string `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &positions))
	assert.Equal(t, "Magazine 1 pot 1 cutter 1", positions.Positions[0])

	// The refresh also read the machine state
	w, _ = s.do(t, http.MethodGet, "/api/v1/machine", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRefresh_ThrottledCarriesRetryAfter(t *testing.T) {
	s := newTestServer(t, time.Hour)
	s.emu.FailOp(emulator.OpAllocHandle, link.CodeFunc)

	w, env := s.do(t, http.MethodPost, "/api/v1/tools/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "CONTROLLER_ERROR", env.Error.Code)

	w, env = s.do(t, http.MethodPost, "/api/v1/tools/refresh", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestSetItem(t *testing.T) {
	s := newTestServer(t, 0)

	w, _ := s.do(t, http.MethodPut, "/api/v1/tools/items/abc", WriteItemRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/tools/items/%d", link.Pro5PTN), WriteItemRequest{
		Positions: []link.ToolPosition{{Magazine: 1, Pot: 1, Cutter: 1}},
		Values:    []int32{1, 2},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/tools/items/%d", link.Pro5PTN), WriteItemRequest{
		Positions: []link.ToolPosition{{Magazine: 2, Pot: 4, Cutter: 1}},
		Values:    []int32{777},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.Success)

	data, err := s.svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, data.FindByToolNumber("777"), 1)
}

func TestClearTools_RejectsZeroCutter(t *testing.T) {
	s := newTestServer(t, 0)
	w, env := s.do(t, http.MethodPost, "/api/v1/tools/clear", ClearToolsRequest{
		Positions: []link.ToolPosition{{Magazine: 1, Pot: 3}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
}

func TestClearTools(t *testing.T) {
	s := newTestServer(t, 0)

	w, _ := s.do(t, http.MethodPost, "/api/v1/tools/clear", ClearToolsRequest{
		Positions: []link.ToolPosition{{Magazine: 1, Pot: 3, Cutter: 1}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, s.emu.CallCount(emulator.OpClearToolData))
}

func TestGetAlarms(t *testing.T) {
	s := newTestServer(t, 0)

	w, env := s.do(t, http.MethodGet, "/api/v1/machine/alarms", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var alarms model.AlarmList
	require.NoError(t, json.Unmarshal(env.Data, &alarms))
	require.Len(t, alarms.Machine, 1)
	assert.Equal(t, "2041", alarms.Machine[0].Number)
	assert.Equal(t, "Pro6", alarms.Machine[0].ProtocolVersion)
	require.Len(t, alarms.Cnc, 1)
	assert.Equal(t, "OVER TRAVEL +Y", alarms.Cnc[0].Message)

	s.emu.FailOp(emulator.OpMcAlarm, link.CodeFunc)
	s.emu.FailOp(emulator.OpCncAlarm, link.CodeFunc)
	w, env = s.do(t, http.MethodGet, "/api/v1/machine/alarms", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONTROLLER_ERROR", env.Error.Code)
}

func TestMachineEndpoints(t *testing.T) {
	s := newTestServer(t, 0)

	w, env := s.do(t, http.MethodGet, "/api/v1/machine/spindle-tool", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var spindle struct {
		ToolNumber uint32 `json:"tool_number"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &spindle))
	assert.Equal(t, uint32(102), spindle.ToolNumber)

	w, env = s.do(t, http.MethodGet, "/api/v1/machine/pallet", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"pallet":1}`, string(env.Data))

	w, env = s.do(t, http.MethodGet, "/api/v1/machine/mcode", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"last":6,"requested":true,"current_block":6}`, string(env.Data))

	s.emu.SetMCode(link.MCode{Code: 30})
	_, env = s.do(t, http.MethodGet, "/api/v1/machine/mcode", nil)
	assert.JSONEq(t, `{"last":30,"requested":false}`, string(env.Data))

	w, env = s.do(t, http.MethodGet, "/api/v1/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status service.Status
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.True(t, status.Session.ProXConnected)
	assert.True(t, status.Session.CncConnected)
}

func TestHistory_Disabled(t *testing.T) {
	s := newTestServer(t, 0)
	w, _ := s.do(t, http.MethodGet, "/api/v1/tools/history", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 0)

	w, _ := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Contains(t, health.Checks, "controller")
	assert.NotContains(t, health.Checks, "database")

	w, _ = s.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	_, err := s.svc.Refresh(context.Background())
	require.NoError(t, err)
	w, _ = s.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("prox: %w", link.ErrRetryDelayed), http.StatusServiceUnavailable},
		{fmt.Errorf("prox: %w", link.ErrNoValidVersion), http.StatusBadGateway},
		{fmt.Errorf("%w: ptn", link.ErrFatalAcquire), http.StatusBadGateway},
		{link.NewError("MaxAtcMagazine", link.CodeHandle), http.StatusBadGateway},
		{link.NewError("SpindleTool", link.CodeFunc), http.StatusBadGateway},
		{service.ErrNoSnapshot, http.StatusNotFound},
		{service.ErrHistoryDisabled, http.StatusNotImplemented},
		{fmt.Errorf("%w: no positions", service.ErrInvalidWrite), http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Start(ctx)

	snapshots := bus.Subscribe(string(model.EventSnapshotPublished))
	all := bus.Subscribe(AllEvents)

	require.NoError(t, bus.PublishEvent(ctx, model.NewAdapterEvent(model.EventRefreshFailed, "m1", "ERROR", nil)))
	require.NoError(t, bus.PublishEvent(ctx, model.NewAdapterEvent(model.EventSnapshotPublished, "m1", "INFO", nil)))

	select {
	case event := <-snapshots:
		assert.Equal(t, model.EventSnapshotPublished, event.EventType)
	case <-time.After(time.Second):
		t.Fatal("snapshot event not delivered")
	}

	var types []model.EventType
	for len(types) < 2 {
		select {
		case event := <-all:
			types = append(types, event.EventType)
		case <-time.After(time.Second):
			t.Fatal("events not delivered")
		}
	}
	assert.Equal(t, []model.EventType{model.EventRefreshFailed, model.EventSnapshotPublished}, types)
}

func TestClientSubscriptions(t *testing.T) {
	client := &Client{ID: "c1", Send: make(chan []byte, 1)}
	assert.True(t, client.Wants("SNAPSHOT_PUBLISHED"))

	client.Subscribe("REFRESH_FAILED")
	assert.True(t, client.Wants("REFRESH_FAILED"))
	assert.False(t, client.Wants("SNAPSHOT_PUBLISHED"))

	client.Unsubscribe("REFRESH_FAILED")
	assert.True(t, client.Wants("SNAPSHOT_PUBLISHED"))

	cm := NewConnectionManager()
	assert.False(t, cm.send(client, []byte("x")), "unregistered client")
	cm.Register(client)
	assert.True(t, cm.send(client, []byte("x")))
	assert.False(t, cm.send(client, []byte("y")), "full channel")
	assert.Equal(t, 1, cm.GetStats().TotalConnections)

	cm.Unregister(client)
	_, open := <-client.Send
	assert.True(t, open, "queued message is still readable")
	_, open = <-client.Send
	assert.False(t, open)
}
