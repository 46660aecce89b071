package pkgerr

// ExitCode is the standard result enum threaded through the core and
// surfaced to the CLI layer, per §7's "Exit codes" list.
type ExitCode int

const (
	Ok ExitCode = iota
	End
	Warn
	Fatal
	Required
	Installed
	Locked
	EnoAccess
	EnoEnt
	EnoCompat32
	Cancel
	UpToDate
	NoNetwork
)

func (c ExitCode) String() string {
	switch c {
	case Ok:
		return "ok"
	case End:
		return "end"
	case Warn:
		return "warn"
	case Fatal:
		return "fatal"
	case Required:
		return "required"
	case Installed:
		return "installed"
	case Locked:
		return "locked"
	case EnoAccess:
		return "eno_access"
	case EnoEnt:
		return "eno_ent"
	case EnoCompat32:
		return "eno_compat32"
	case Cancel:
		return "cancel"
	case UpToDate:
		return "up_to_date"
	case NoNetwork:
		return "no_network"
	default:
		return "unknown"
	}
}

// ExitCodeForKind coalesces an error Kind into the exit code the installer's
// top-level loop reports to the DB/CLI layers, per §7's propagation policy.
func ExitCodeForKind(k Kind) ExitCode {
	switch k {
	case Transient:
		return NoNetwork
	case Trust:
		return Fatal
	case Conflict:
		return Locked
	case Parse:
		return Fatal
	case Filesystem:
		return EnoAccess
	case Cancellation:
		return Cancel
	case Database:
		return Fatal
	default:
		return Fatal
	}
}

// ExitCodeFor inspects err for a wrapped *Error and returns the
// corresponding ExitCode, or Fatal if err is non-nil but untagged, or Ok if
// err is nil.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return Ok
	}
	if k, ok := KindOf(err); ok {
		return ExitCodeForKind(k)
	}
	return Fatal
}
