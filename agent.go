package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/nedpals/nfc-session/buildinfo"
	"github.com/nedpals/nfc-session/config"
	"github.com/nedpals/nfc-session/nfc"
	"github.com/nedpals/nfc-session/server"
)

// mockTagInterval is how often the simulated tag is presented in mock mode.
const mockTagInterval = time.Second

// ErrAlreadyRunning is returned by Start when the agent holds a controller.
var ErrAlreadyRunning = errors.New("agent is already running")

// Agent wires a reader adapter, a session controller and the observer
// server together, and owns their lifecycle.
type Agent struct {
	Config   config.Config
	Logger   zerolog.Logger
	Notifier nfc.Notifier

	// LockPath guards the reader against a second agent process. Empty
	// picks a file in the temp directory.
	LockPath string

	mu         sync.Mutex
	adapter    nfc.Adapter
	controller *nfc.Controller
	server     *server.Server
	lock       *flock.Flock
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewAgent(cfg config.Config, logger zerolog.Logger) *Agent {
	return &Agent{
		Config: cfg,
		Logger: logger.With().Str("component", "agent").Logger(),
	}
}

// Start opens the reader named by devicePath (or the configured device when
// empty), initializes the controller and, if enabled, starts the server.
func (a *Agent) Start(devicePath string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.controller != nil {
		return ErrAlreadyRunning
	}
	if devicePath == "" {
		devicePath = a.Config.NFC.Device
	}

	lock := flock.New(a.lockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire reader lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another %s instance is using the reader (lock %s)", buildinfo.Name, lock.Path())
	}

	adapter := a.newAdapter(devicePath)

	opts := a.Config.NFC.ControllerOptions()
	opts.Logger = &a.Logger
	opts.Notifier = a.Notifier
	if opts.Notifier == nil {
		opts.Notifier = nfc.LogNotifier{Logger: a.Logger}
	}
	controller := nfc.NewController(adapter, opts)
	if err := controller.Initialize(); err != nil {
		controller.Close()
		closeAdapter(adapter)
		lock.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.adapter = adapter
	a.controller = controller
	a.lock = lock
	a.cancel = cancel

	if a.Config.Server.Enabled {
		a.server = server.New(server.Config{
			Controller: controller,
			Host:       a.Config.Server.Host,
			Port:       a.Config.Server.Port,
			APISecret:  a.Config.Server.APISecret,
			EnableMDNS: a.Config.Server.MDNS,
			Logger:     a.Logger,
		})
		a.wg.Add(1)
		go func(s *server.Server) {
			defer a.wg.Done()
			if err := s.Run(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("Server stopped")
			}
		}(a.server)
	}

	if mock, ok := adapter.(*nfc.MockAdapter); ok {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			simulateTags(ctx, mock, controller, mockTagInterval)
		}()
	}

	a.Logger.Info().
		Str("device", devicePath).
		Bool("mock", a.Config.NFC.Mock).
		Bool("server", a.Config.Server.Enabled).
		Msg("Agent started")
	return nil
}

// Stop shuts down the server, the controller and the reader, in that order.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.controller == nil {
		a.Logger.Debug().Msg("Agent is not running")
		return
	}
	a.Logger.Info().Msg("Stopping agent...")

	a.cancel()
	a.wg.Wait()
	if err := a.controller.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Controller close error")
	}
	closeAdapter(a.adapter)
	if err := a.lock.Unlock(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to release reader lock")
	}

	a.adapter, a.controller, a.server, a.lock, a.cancel = nil, nil, nil, nil, nil
	a.Logger.Info().Msg("Agent stopped successfully")
}

// Controller returns the running controller, or nil when stopped.
func (a *Agent) Controller() *nfc.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.controller
}

// Running reports whether Start succeeded and Stop has not been called.
func (a *Agent) Running() bool {
	return a.Controller() != nil
}

// Filters returns the card types discovery is restricted to.
func (a *Agent) Filters() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.Config.NFC.Filters)
}

// SetAllowCardType adds or removes cardType from the discovery filters. The
// new filters apply the next time the agent starts.
func (a *Agent) SetAllowCardType(cardType string, allow bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	filters := slices.DeleteFunc(slices.Clone(a.Config.NFC.Filters), func(t string) bool { return t == cardType })
	if allow {
		filters = append(filters, cardType)
	}
	a.Config.NFC.Filters = filters
}

// SetContinuousRead changes whether reading stays armed after every tag. It
// applies the next time the agent starts.
func (a *Agent) SetContinuousRead(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Config.NFC.ContinuousRead = enabled
}

// AllowAllCardTypes clears the discovery filters.
func (a *Agent) AllowAllCardTypes() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Config.NFC.Filters = nil
}

func (a *Agent) lockPath() string {
	if a.LockPath != "" {
		return a.LockPath
	}
	return filepath.Join(os.TempDir(), buildinfo.Name+".lock")
}

func (a *Agent) newAdapter(devicePath string) nfc.Adapter {
	if a.Config.NFC.Mock {
		return nfc.NewMockAdapter()
	}
	return nfc.NewLibnfcAdapter(devicePath, a.Config.NFC.PollInterval, nil, a.Logger)
}

func closeAdapter(adapter nfc.Adapter) {
	if c, ok := adapter.(io.Closer); ok {
		c.Close()
	}
}

// simulateTags presents one persistent mock tag whenever the controller waits
// for a tag, so that mock mode behaves like a reader with a tag held on it.
func simulateTags(ctx context.Context, adapter *nfc.MockAdapter, controller *nfc.Controller, interval time.Duration) {
	tag := nfc.NewMockTag([]byte{0x04, 0x4E, 0x46, 0x43, 0x00, 0x00, 0x01}, nfc.DefaultPayload)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if controller.State() == nfc.StateAwaitingTag {
				adapter.Present(tag)
			}
		}
	}
}
