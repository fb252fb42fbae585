package por

// EventKind is the closed set of event kinds the unfolding can contain.
// It is deliberately a small value type rather than an interface
// hierarchy: the per-kind data that varies lives on the event envelope
// (por/event), not on the kind itself.
type EventKind uint8

const (
	ProgramInit EventKind = iota
	ThreadCreate
	ThreadInit
	ThreadExit
	ThreadJoin
	LockCreate
	LockDestroy
	LockAcquire
	LockRelease
	CondCreate
	CondDestroy
	Wait1
	Wait2
	Signal
	Broadcast
	Local
)

var kindNames = [...]string{
	ProgramInit:  "program_init",
	ThreadCreate: "thread_create",
	ThreadInit:   "thread_init",
	ThreadExit:   "thread_exit",
	ThreadJoin:   "thread_join",
	LockCreate:   "lock_create",
	LockDestroy:  "lock_destroy",
	LockAcquire:  "lock_acquire",
	LockRelease:  "lock_release",
	CondCreate:   "cond_create",
	CondDestroy:  "cond_destroy",
	Wait1:        "wait1",
	Wait2:        "wait2",
	Signal:       "signal",
	Broadcast:    "broadcast",
	Local:        "local",
}

// String renders the kind using its canonical lowercase name.
func (k EventKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// LockId identifies a lock. Lock ids are caller-assigned and opaque to
// the engine beyond equality and use in map keys.
type LockId uint64

// CondId identifies a condition variable, opaque the same way as LockId.
type CondId uint64
