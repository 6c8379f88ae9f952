package service

// NetworkChecker reports whether a network path to the site exists. The
// shell application owns connectivity detection and injects it here.
type NetworkChecker interface {
	Online() bool
}

// NetworkCheckerFunc allows using plain functions.
type NetworkCheckerFunc func() bool

// Online implements NetworkChecker.
func (f NetworkCheckerFunc) Online() bool { return f() }

// AlwaysOnline is the default gate for agents running on wired hosts.
var AlwaysOnline = NetworkCheckerFunc(func() bool { return true })
