package credstore

// Scope tells where a credential is persisted
type Scope int

const (
	ScopeNone Scope = iota

	// Lives as long as the process
	ScopeEphemeral

	// Survives restarts
	ScopeDurable
)

// ScopeFor maps the "remember me" choice to a scope
func ScopeFor(remember bool) Scope {
	if remember {
		return ScopeDurable
	}
	return ScopeEphemeral
}

func (s Scope) Remember() bool {
	return s == ScopeDurable
}

func (s Scope) String() string {
	switch s {
	case ScopeEphemeral:
		return "ephemeral"
	case ScopeDurable:
		return "durable"
	default:
		return "none"
	}
}
