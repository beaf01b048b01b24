package backend

import (
	"fmt"
	"sort"
)

// Fake is an in-memory Backend for tests. Fields are plain maps so test
// setup reads as data; mutate them directly before exercising the code
// under test.
type Fake struct {
	// Installed maps package name to installed version.
	Installed map[string]string

	// Candidates maps channel -> package name -> candidate version.
	Candidates map[string]map[string]string

	// Virtual marks names satisfied only via provides.
	Virtual map[string]bool

	// Depends maps package name to its direct dependencies.
	Depends map[string][]string

	// DependsErr makes DirectDependencies fail for specific names.
	DependsErr map[string]error

	// InstallErr makes Install fail for specific names.
	InstallErr map[string]error

	// Hidden names become visible in Candidates only after a
	// RefreshMetadata call, mirroring a stale local metadata cache.
	Hidden map[string]map[string]string

	Locked     bool
	ProbeErr   error
	RefreshErr error

	// Call records
	RefreshCalls int
	InstallLog   []string
}

// NewFake returns an empty fake backend.
func NewFake() *Fake {
	return &Fake{
		Installed:  make(map[string]string),
		Candidates: make(map[string]map[string]string),
		Virtual:    make(map[string]bool),
		Depends:    make(map[string][]string),
		DependsErr: make(map[string]error),
		InstallErr: make(map[string]error),
		Hidden:     make(map[string]map[string]string),
	}
}

// AddCandidate registers a candidate version for name in channel.
func (f *Fake) AddCandidate(channel, name, version string) {
	if f.Candidates[channel] == nil {
		f.Candidates[channel] = make(map[string]string)
	}
	f.Candidates[channel][name] = version
}

func (f *Fake) Exists(name, channel string) (bool, error) {
	if channel == "" {
		for _, pkgs := range f.Candidates {
			if _, ok := pkgs[name]; ok {
				return true, nil
			}
		}
		_, installed := f.Installed[name]
		return installed, nil
	}
	_, ok := f.Candidates[channel][name]
	return ok, nil
}

func (f *Fake) IsVirtual(name string) (bool, error) {
	return f.Virtual[name], nil
}

func (f *Fake) DirectDependencies(name string) ([]string, error) {
	if err := f.DependsErr[name]; err != nil {
		return nil, err
	}
	return f.Depends[name], nil
}

func (f *Fake) InstalledVersion(name string) (string, error) {
	return f.Installed[name], nil
}

func (f *Fake) CandidateVersion(name, channel string) (string, error) {
	if channel != "" {
		return f.Candidates[channel][name], nil
	}
	channels := make([]string, 0, len(f.Candidates))
	for ch := range f.Candidates {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	for _, ch := range channels {
		if v, ok := f.Candidates[ch][name]; ok {
			return v, nil
		}
	}
	return "", nil
}

func (f *Fake) Install(name, channel string, nonInteractive bool) error {
	f.InstallLog = append(f.InstallLog, fmt.Sprintf("%s@%s", name, channel))
	if err := f.InstallErr[name]; err != nil {
		return err
	}
	version := f.Candidates[channel][name]
	if version == "" {
		version = "0.0-fake"
	}
	f.Installed[name] = version
	return nil
}

func (f *Fake) RefreshMetadata() error {
	f.RefreshCalls++
	if f.RefreshErr != nil {
		return f.RefreshErr
	}
	for channel, pkgs := range f.Hidden {
		for name, version := range pkgs {
			f.AddCandidate(channel, name, version)
		}
	}
	f.Hidden = make(map[string]map[string]string)
	return nil
}

func (f *Fake) IsLocked() bool {
	return f.Locked
}

func (f *Fake) Probe(channel string) error {
	return f.ProbeErr
}
