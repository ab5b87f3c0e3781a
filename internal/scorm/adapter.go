package scorm

import "fmt"

// API12 exposes the SCORM 1.2 runtime surface (the window.API contract)
// over a Session. Method names and signatures follow the published
// protocol exactly; the host bridges them to whatever transport the
// content frame uses.
type API12 struct {
	s *Session
}

// NewAPI12 wraps a 1.2 session. Sessions built for another version are
// refused: the two wire surfaces are not interchangeable.
func NewAPI12(s *Session) (*API12, error) {
	if s.Version() != V12 {
		return nil, fmt.Errorf("api 1.2 requires a 1.2 session, got version %s", s.Version())
	}
	return &API12{s: s}, nil
}

func (a *API12) LMSInitialize(param string) string        { return a.s.Initialize(param) }
func (a *API12) LMSFinish(param string) string            { return a.s.Terminate(param) }
func (a *API12) LMSGetValue(element string) string        { return a.s.GetValue(element) }
func (a *API12) LMSSetValue(element, value string) string { return a.s.SetValue(element, value) }
func (a *API12) LMSCommit(param string) string            { return a.s.Commit(param) }
func (a *API12) LMSGetLastError() string                  { return a.s.GetLastError() }
func (a *API12) LMSGetErrorString(code string) string     { return a.s.GetErrorString(code) }
func (a *API12) LMSGetDiagnostic(code string) string      { return a.s.GetDiagnostic(code) }

// API2004 exposes the SCORM 2004 runtime surface (the window.API_1484_11
// contract) over a Session.
type API2004 struct {
	s *Session
}

// NewAPI2004 wraps a 2004 session.
func NewAPI2004(s *Session) (*API2004, error) {
	if s.Version() != V2004 {
		return nil, fmt.Errorf("api 2004 requires a 2004 session, got version %s", s.Version())
	}
	return &API2004{s: s}, nil
}

func (a *API2004) Initialize(param string) string        { return a.s.Initialize(param) }
func (a *API2004) Terminate(param string) string         { return a.s.Terminate(param) }
func (a *API2004) GetValue(element string) string        { return a.s.GetValue(element) }
func (a *API2004) SetValue(element, value string) string { return a.s.SetValue(element, value) }
func (a *API2004) Commit(param string) string            { return a.s.Commit(param) }
func (a *API2004) GetLastError() string                  { return a.s.GetLastError() }
func (a *API2004) GetErrorString(code string) string     { return a.s.GetErrorString(code) }
func (a *API2004) GetDiagnostic(code string) string      { return a.s.GetDiagnostic(code) }
