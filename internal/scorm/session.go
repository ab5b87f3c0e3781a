package scorm

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Protocol result strings. The runtime surface speaks the JS convention of
// string-encoded booleans; Go booleans never cross it.
const (
	ResultTrue  = "true"
	ResultFalse = "false"
)

// ErrUnknownVersion indicates an Options.Version outside {V12, V2004}.
var ErrUnknownVersion = errors.New("unknown scorm version")

// Snapshot is the state handed to commit and terminate handlers. Data is a
// copy; handlers may retain it.
type Snapshot struct {
	Version     Version
	Data        map[string]string
	SessionTime time.Duration
	TakenAt     time.Time
	AutoSave    bool
	Final       bool
}

// CommitHandler persists a snapshot when content requests a save. A
// returned error surfaces to content as a general exception and leaves the
// dirty flag set, so the next commit retries.
type CommitHandler interface {
	HandleCommit(snap Snapshot) error
}

// CommitHandlerFunc adapts a function to CommitHandler.
type CommitHandlerFunc func(Snapshot) error

func (f CommitHandlerFunc) HandleCommit(snap Snapshot) error { return f(snap) }

// TerminateHandler receives the final snapshot exactly once per session.
type TerminateHandler interface {
	HandleTerminate(snap Snapshot) error
}

// TerminateHandlerFunc adapts a function to TerminateHandler.
type TerminateHandlerFunc func(Snapshot) error

func (f TerminateHandlerFunc) HandleTerminate(snap Snapshot) error { return f(snap) }

// ErrorListener observes every runtime error as it is recorded. It runs
// with the session locked and must not call back into the session.
type ErrorListener func(code, message, diagnostic string)

// Options configures a Session.
type Options struct {
	// Version selects the protocol; empty defaults to V12.
	Version Version

	// LearnerID and LearnerName seed the read-only identity elements.
	LearnerID   string
	LearnerName string

	// SavedData pre-seeds the store from a prior attempt. Its presence
	// switches the entry element to "resume". Elements outside the
	// version's data model are dropped with a warning.
	SavedData map[string]string

	// LaunchData seeds cmi.launch_data from the manifest.
	LaunchData string

	// AutoSaveInterval enables periodic background commits of unsaved
	// changes. Zero disables the scheduler entirely.
	AutoSaveInterval time.Duration

	OnCommit    CommitHandler
	OnTerminate TerminateHandler
	OnError     ErrorListener

	// Logger defaults to slog.Default. Debug additionally traces every
	// protocol call at debug level.
	Logger *slog.Logger
	Debug  bool

	// Clock overrides the wall clock for the session timer. Nil means
	// time.Now.
	Clock func() time.Time
}

// Session is the runtime state for one SCO attempt: a flat string store,
// the lifecycle gate, the error reporter, and the session timer. There is
// no package-global instance; hosts hold sessions explicitly, usually
// through a Registry.
//
// Every exported method is safe for concurrent use. Handlers and the error
// listener run synchronously under the session lock, so the host learns a
// commit's outcome from the operation's own return value.
type Session struct {
	version          Version
	onCommit         CommitHandler
	onTerminate      TerminateHandler
	onError          ErrorListener
	logger           *slog.Logger
	debug            bool
	now              func() time.Time
	autoSaveInterval time.Duration

	mu             sync.Mutex
	data           map[string]string
	dirty          bool
	initialized    bool
	terminated     bool
	startedAt      time.Time
	endedAt        time.Time
	lastCode       string
	lastDiagnostic string
	ticker         *time.Ticker
	stopAutoSave   chan struct{}
}

// NewSession builds a session and seeds its store: LMS defaults first,
// then any saved state on top. Content cannot touch the store until
// Initialize succeeds.
func NewSession(opts Options) (*Session, error) {
	version := opts.Version
	if version == "" {
		version = V12
	}
	if !version.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, string(opts.Version))
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	s := &Session{
		version:          version,
		onCommit:         opts.OnCommit,
		onTerminate:      opts.OnTerminate,
		onError:          opts.OnError,
		logger:           logger,
		debug:            opts.Debug,
		now:              now,
		autoSaveInterval: opts.AutoSaveInterval,
		data:             seedDefaults(version, opts.LearnerID, opts.LearnerName, opts.LaunchData, len(opts.SavedData) > 0),
		lastCode:         NoError,
	}

	for element, value := range opts.SavedData {
		if _, ok := lookupElement(version, element); !ok {
			logger.Warn("dropping saved element outside data model",
				"element", element,
				"version", string(version))
			continue
		}
		s.data[element] = value
	}

	return s, nil
}

// Version returns the protocol version the session speaks.
func (s *Session) Version() Version {
	return s.version
}

// Initialize begins the runtime session. The argument must be "" per
// protocol. On success it records the session start time and starts the
// auto-save scheduler when one is configured.
func (s *Session) Initialize(arg string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetError()
	if arg != "" {
		return s.fail(opInitialize, condInvalidArgument, fmt.Sprintf("argument must be empty, got %q", arg))
	}
	if s.terminated {
		return s.fail(opInitialize, condAlreadyTerminated, "")
	}
	if s.initialized {
		return s.fail(opInitialize, condAlreadyInitialized, "")
	}

	s.initialized = true
	s.startedAt = s.now()
	if s.autoSaveInterval > 0 {
		s.startAutoSaveLocked()
	}
	s.trace("Initialize")
	return ResultTrue
}

// GetValue reads an element. Errors return "" with the code retrievable
// via GetLastError; a valid element that was never written also returns
// "" but leaves the last error at success.
func (s *Session) GetValue(element string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetError()
	if s.terminated {
		s.fail(opGet, condAlreadyTerminated, "")
		return ""
	}
	if !s.initialized {
		s.fail(opGet, condNotInitialized, "")
		return ""
	}

	mode, ok := lookupElement(s.version, element)
	if !ok {
		s.fail(opGet, condInvalidElement, "no such element: "+element)
		return ""
	}
	if mode == accessWriteOnly {
		s.fail(opGet, condWriteOnly, element+" is write only")
		return ""
	}

	value := s.data[element]
	s.trace("GetValue", "element", element, "value", value)
	return value
}

// SetValue writes an element verbatim. Gate order is lifecycle, validity,
// access mode; a rejected write leaves the store untouched. Accepted
// writes mark the session dirty until the next successful commit.
func (s *Session) SetValue(element, value string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetError()
	if s.terminated {
		return s.fail(opSet, condAlreadyTerminated, "")
	}
	if !s.initialized {
		return s.fail(opSet, condNotInitialized, "")
	}

	mode, ok := lookupElement(s.version, element)
	if !ok {
		return s.fail(opSet, condInvalidElement, "no such element: "+element)
	}
	if mode == accessReadOnly {
		return s.fail(opSet, condReadOnly, element+" is read only")
	}

	s.data[element] = value
	s.dirty = true
	s.trace("SetValue", "element", element)
	return ResultTrue
}

// Commit flushes unsaved changes through the commit handler. Session time
// is recomputed first. A clean store is a no-op success: the handler is
// not invoked. A handler error reports a general exception and keeps the
// dirty flag, so a later commit retries.
func (s *Session) Commit(arg string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetError()
	if arg != "" {
		return s.fail(opCommit, condInvalidArgument, fmt.Sprintf("argument must be empty, got %q", arg))
	}
	if s.terminated {
		return s.fail(opCommit, condAlreadyTerminated, "")
	}
	if !s.initialized {
		return s.fail(opCommit, condNotInitialized, "")
	}

	s.storeSessionTimeLocked()
	if !s.dirty {
		s.trace("Commit", "noop", true)
		return ResultTrue
	}

	if s.onCommit != nil {
		if err := s.onCommit.HandleCommit(s.snapshotLocked(false, false)); err != nil {
			return s.fail(opCommit, condGeneral, fmt.Sprintf("commit handler: %v", err))
		}
	}
	s.dirty = false
	s.trace("Commit")
	return ResultTrue
}

// Terminate ends the session. The final snapshot goes to the terminate
// handler regardless of the dirty flag, and the lifecycle transition
// happens even when the handler fails: content sees "false" with a
// general exception, but the session is over either way.
func (s *Session) Terminate(arg string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetError()
	if arg != "" {
		return s.fail(opTerminate, condInvalidArgument, fmt.Sprintf("argument must be empty, got %q", arg))
	}
	if s.terminated {
		return s.fail(opTerminate, condAlreadyTerminated, "")
	}
	if !s.initialized {
		return s.fail(opTerminate, condNotInitialized, "")
	}

	s.endedAt = s.now()
	s.storeSessionTimeLocked()
	s.stopAutoSaveLocked()

	result := ResultTrue
	if s.onTerminate != nil {
		if err := s.onTerminate.HandleTerminate(s.snapshotLocked(false, true)); err != nil {
			result = s.fail(opTerminate, condGeneral, fmt.Sprintf("terminate handler: %v", err))
		}
	}
	s.terminated = true
	s.trace("Terminate", "result", result)
	return result
}

// GetLastError returns the code recorded by the most recent operation.
// It never mutates state.
func (s *Session) GetLastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCode
}

// GetErrorString returns the static message for a code, "" for codes
// outside the version's table. Usable in any lifecycle state.
func (s *Session) GetErrorString(code string) string {
	return ErrorString(s.version, code)
}

// GetDiagnostic returns implementation detail for a code. An empty code or
// the current last-error code yields the recorded diagnostic when one
// exists; anything else falls back to the static message.
func (s *Session) GetDiagnostic(code string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastDiagnostic != "" && (code == "" || code == s.lastCode) {
		return s.lastDiagnostic
	}
	return ErrorString(s.version, code)
}

// UpdateSessionTime recomputes the session_time element from the clock
// and returns the formatted value. Commit and terminate do this
// internally; hosts call it for live displays.
func (s *Session) UpdateSessionTime() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeSessionTimeLocked()
	return s.data[sessionTimeElement(s.version)]
}

// Initialized reports whether Initialize has succeeded.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Terminated reports whether the session has ended.
func (s *Session) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// HasChanges reports whether unsaved writes exist.
func (s *Session) HasChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Snapshot copies the current store for host-side inspection, bypassing
// the protocol gates. Content reads go through GetValue.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(false, s.terminated)
}

// Close tears down the auto-save scheduler without running the protocol
// terminate path. Safe to call repeatedly; hosts use it when discarding a
// session that content never finished.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAutoSaveLocked()
}

// autoCommit is one auto-save tick: the manual commit sequence, minus the
// callback when nothing changed. Ticks after termination do nothing. A
// handler failure is reported through the error listener and keeps the
// dirty flag for the next tick; it does not disturb the last error seen
// by content on the success path.
func (s *Session) autoCommit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized || s.terminated || !s.dirty {
		return
	}

	s.storeSessionTimeLocked()
	if s.onCommit != nil {
		if err := s.onCommit.HandleCommit(s.snapshotLocked(true, false)); err != nil {
			s.fail(opCommit, condGeneral, fmt.Sprintf("auto-save commit handler: %v", err))
			return
		}
	}
	s.dirty = false
	s.trace("autoCommit")
}

// startAutoSaveLocked launches the ticker goroutine. Caller holds s.mu.
func (s *Session) startAutoSaveLocked() {
	s.ticker = time.NewTicker(s.autoSaveInterval)
	s.stopAutoSave = make(chan struct{})

	go func(tick *time.Ticker, stop chan struct{}) {
		for {
			select {
			case <-tick.C:
				s.autoCommit()
			case <-stop:
				return
			}
		}
	}(s.ticker, s.stopAutoSave)
}

// stopAutoSaveLocked halts the scheduler. Caller holds s.mu. No tick runs
// after this returns: a tick blocked on the mutex re-checks lifecycle and
// dirty state before doing anything.
func (s *Session) stopAutoSaveLocked() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	if s.stopAutoSave != nil {
		close(s.stopAutoSave)
		s.stopAutoSave = nil
	}
}

// elapsedLocked is the wall-clock session length: zero before initialize,
// frozen at the terminate timestamp afterwards. Caller holds s.mu.
func (s *Session) elapsedLocked() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	end := s.endedAt
	if end.IsZero() {
		end = s.now()
	}
	return end.Sub(s.startedAt)
}

// storeSessionTimeLocked writes the computed elapsed time into the
// version's session_time element. Internal write: the dirty flag is not
// touched, so back-to-back commits stay no-ops. Caller holds s.mu.
func (s *Session) storeSessionTimeLocked() {
	elapsed := s.elapsedLocked()
	var formatted string
	if s.version == V2004 {
		formatted = FormatTimeinterval2004(elapsed)
	} else {
		formatted = FormatTimespan12(elapsed)
	}
	s.data[sessionTimeElement(s.version)] = formatted
}

// snapshotLocked copies the store. Caller holds s.mu.
func (s *Session) snapshotLocked(autoSave, final bool) Snapshot {
	data := make(map[string]string, len(s.data))
	for k, v := range s.data {
		data[k] = v
	}
	return Snapshot{
		Version:     s.version,
		Data:        data,
		SessionTime: s.elapsedLocked(),
		TakenAt:     s.now(),
		AutoSave:    autoSave,
		Final:       final,
	}
}

// resetError clears the error state at the start of an operation attempt.
// Caller holds s.mu.
func (s *Session) resetError() {
	s.lastCode = NoError
	s.lastDiagnostic = ""
}

// fail records an error, notifies the listener, and returns the protocol
// failure string. Caller holds s.mu.
func (s *Session) fail(o op, c condition, diagnostic string) string {
	code := codeFor(s.version, o, c)
	s.lastCode = code
	s.lastDiagnostic = diagnostic

	message := ErrorString(s.version, code)
	if s.onError != nil {
		s.onError(code, message, diagnostic)
	}
	s.logger.Debug("scorm operation failed",
		"op", opNames[o],
		"code", code,
		"message", message,
		"diagnostic", diagnostic)
	return ResultFalse
}

// trace logs a successful protocol call when debug tracing is on. Caller
// holds s.mu.
func (s *Session) trace(opName string, args ...any) {
	if !s.debug {
		return
	}
	s.logger.Debug("scorm "+opName, args...)
}
