package dieselxr

// SessionState is the engine's view of the session lifecycle.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionReady
	SessionRunning
	SessionStopping
	SessionExiting
	SessionLossPending
)

var sessionStateNames = [...]string{"idle", "ready", "running", "stopping", "exiting", "loss_pending"}

func (s SessionState) String() string {
	if s < 0 || int(s) >= len(sessionStateNames) {
		return "invalid"
	}
	return sessionStateNames[s]
}

// Terminal states end the frame loop.
func (s SessionState) Terminal() bool {
	return s == SessionExiting || s == SessionLossPending
}

// SessionAction is the side effect a transition asks its caller to apply.
type SessionAction int

const (
	ActionNone SessionAction = iota
	ActionBegin
	ActionEnd
	ActionTerminate
)

func (a SessionAction) String() string {
	switch a {
	case ActionBegin:
		return "begin"
	case ActionEnd:
		return "end"
	case ActionTerminate:
		return "terminate"
	}
	return "none"
}

// Transition is the session state machine. It has no side effects; the returned
// action is applied by the caller, which then calls Settle.
func Transition(state SessionState, ev Event) (SessionState, SessionAction) {
	if state.Terminal() {
		return state, ActionNone
	}
	switch e := ev.(type) {
	case InstanceLossPending:
		return SessionLossPending, ActionTerminate
	case SessionStateChanged:
		switch e.State {
		case RuntimeReady:
			if state == SessionIdle || state == SessionReady {
				return SessionReady, ActionBegin
			}
		case RuntimeStopping:
			if state == SessionRunning {
				return SessionStopping, ActionEnd
			}
		case RuntimeExiting:
			return SessionExiting, ActionTerminate
		case RuntimeLossPending:
			return SessionLossPending, ActionTerminate
		}
	}
	return state, ActionNone
}

// Settle is the state reached once action has been applied successfully.
func Settle(state SessionState, action SessionAction) SessionState {
	switch action {
	case ActionBegin:
		return SessionRunning
	case ActionEnd:
		return SessionIdle
	}
	return state
}

// EventSource is the part of the runtime SessionDriver polls.
type EventSource interface {
	PollEvent() (Event, bool, error)
}

// SessionDriver drains runtime events each tick and applies the resulting
// begin and end calls to the session.
type SessionDriver struct {
	events  EventSource
	session Session
	state   SessionState
	ended   bool
}

func NewSessionDriver(events EventSource, session Session) *SessionDriver {
	return &SessionDriver{
		events:  events,
		session: session,
		state:   SessionIdle,
	}
}

func (d *SessionDriver) State() SessionState {
	return d.state
}

// CanSubmit reports whether GPU work may be submitted for the session.
func (d *SessionDriver) CanSubmit() bool {
	return d.state == SessionRunning
}

// Ended reports whether the session has been ended after running.
func (d *SessionDriver) Ended() bool {
	return d.ended
}

func (d *SessionDriver) Done() bool {
	return d.state.Terminal()
}

// Poll drains every pending event. It returns as soon as a terminal state is
// reached, leaving any remaining events unread.
func (d *SessionDriver) Poll() (SessionState, error) {
	log := Logger()
	for !d.state.Terminal() {
		ev, ok, err := d.events.PollEvent()
		if err != nil {
			return d.state, err
		}
		if !ok {
			break
		}
		next, action := Transition(d.state, ev)
		switch action {
		case ActionBegin:
			if err := d.session.Begin(); err != nil {
				d.state = next
				return d.state, err
			}
		case ActionEnd:
			if err := d.session.End(); err != nil {
				d.state = next
				return d.state, err
			}
			d.ended = true
		}
		settled := Settle(next, action)
		if settled != d.state {
			log.Info("session state changed", "from", d.state, "to", settled, "event", describeEvent(ev))
		} else {
			log.Debug("session event ignored", "state", d.state, "event", describeEvent(ev))
		}
		d.state = settled
	}
	return d.state, nil
}

// RequestExit asks the runtime to end a running session. The runtime answers with
// Stopping and Exiting events.
func (d *SessionDriver) RequestExit() error {
	if d.state != SessionRunning {
		return ErrSessionNotRunning
	}
	return d.session.RequestExit()
}

func describeEvent(ev Event) string {
	switch e := ev.(type) {
	case SessionStateChanged:
		return "state_changed:" + e.State.String()
	case InstanceLossPending:
		return "instance_loss_pending"
	case UnknownEvent:
		return "unknown:" + e.Kind
	}
	return "unknown"
}
