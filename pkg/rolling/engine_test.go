package rolling_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domwxyz/aptr/pkg/errors"
	"github.com/domwxyz/aptr/pkg/testutil"
	"github.com/domwxyz/aptr/pkg/types"
)

func TestRoll_HappyPath(t *testing.T) {
	env := testutil.NewEnv(t)
	env.AddInstalledPackage("firefox", "115.0-1", "121.0-1")

	result, err := env.Engine.Roll("firefox")
	require.NoError(t, err)

	assert.True(t, env.Tracked(t, "firefox"))
	assert.True(t, env.PinExists(t, "firefox"))
	assert.Contains(t, env.Backend.InstallLog, "firefox@unstable")
	assert.Equal(t, "roll", result.Command)
	require.NotEmpty(t, result.Packages)
	assert.Equal(t, types.ClassPrimary, result.Packages[0].Class)

	// Primary pins at 990.
	data, err := env.FS.ReadFile(env.Paths.PinPath("firefox"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Pin-Priority: 990")
}

func TestRoll_AlreadyTracked(t *testing.T) {
	env := testutil.NewEnv(t)
	env.AddInstalledPackage("firefox", "115.0-1", "121.0-1")

	_, err := env.Engine.Roll("firefox")
	require.NoError(t, err)

	_, err = env.Engine.Roll("firefox")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrAlreadyTracked))
}

func TestRoll_NotInstalled(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Backend.AddCandidate(testutil.Channel, "firefox", "121.0-1")

	_, err := env.Engine.Roll("firefox")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrNotInstalled))
	assert.False(t, env.Tracked(t, "firefox"))
}

func TestRoll_InvalidName(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, name := range []string{"../sneaky", "a;b", "x|y", "foo/bar"} {
		_, err := env.Engine.Roll(name)
		require.Error(t, err, "name %q", name)
		assert.True(t, errors.IsCode(err, errors.ErrInvalidName), "name %q", name)
	}
	// Nothing was written anywhere.
	names, err := env.Registry.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRoll_RefreshesMetadataWhenNoCandidate(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Backend.Installed["firefox"] = "115.0-1"
	// Candidate appears only after a metadata refresh.
	env.Backend.Hidden[testutil.Channel] = map[string]string{"firefox": "121.0-1"}

	_, err := env.Engine.Roll("firefox")
	require.NoError(t, err)
	assert.Equal(t, 1, env.Backend.RefreshCalls)
	assert.True(t, env.Tracked(t, "firefox"))
}

func TestRoll_NoCandidateAnywhere(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Backend.Installed["obscure"] = "1.0"

	_, err := env.Engine.Roll("obscure")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrNoCandidate))
	assert.Equal(t, 1, env.Backend.RefreshCalls)
}

func TestRoll_BackendLockedAbortsBeforeMutation(t *testing.T) {
	env := testutil.NewEnv(t)
	env.AddInstalledPackage("firefox", "115.0-1", "121.0-1")
	env.Backend.Locked = true

	_, err := env.Engine.Roll("firefox")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrBackendLocked))
	assert.False(t, env.Tracked(t, "firefox"))
	assert.False(t, env.PinExists(t, "firefox"))
}

func TestRoll_DependencyDiscovery(t *testing.T) {
	env := testutil.NewEnv(t)
	env.AddInstalledPackage("app", "1.0", "2.0")
	env.Backend.AddCandidate(testutil.Channel, "libnew", "2.0")
	env.Backend.AddCandidate(testutil.Channel, "libtracked", "2.0")
	env.Backend.AddCandidate(testutil.Channel, "libmanaged", "2.0")
	env.Backend.Depends["app"] = []string{"libnew", "libtracked", "awk", "libmanaged"}

	// libtracked is independently rolling already.
	require.NoError(t, env.Registry.Add("libtracked"))
	// awk is virtual.
	env.Backend.Virtual["awk"] = true
	// libmanaged already has an edge under another parent.
	require.NoError(t, env.Graph.AddEdge("libmanaged", "otherapp"))

	_, err := env.Engine.Roll("app")
	require.NoError(t, err)

	// Only libnew was pinned as a new dependency.
	assert.True(t, env.Tracked(t, "libnew"))
	assert.True(t, env.PinExists(t, "libnew"))
	parents, err := env.Graph.ParentsOf("libnew")
	require.NoError(t, err)
	assert.Equal(t, []string{"app"}, parents)

	// Dependency pins at 500.
	data, err := env.FS.ReadFile(env.Paths.PinPath("libnew"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Pin-Priority: 500")

	// The skipped candidates gained no new edges.
	assert.False(t, env.PinExists(t, "awk"))
	parents, err = env.Graph.ParentsOf("libmanaged")
	require.NoError(t, err)
	assert.Equal(t, []string{"otherapp"}, parents)
	parents, err = env.Graph.ParentsOf("libtracked")
	require.NoError(t, err)
	assert.Empty(t, parents)
}

func TestRoll_RollbackOnInstallFailure(t *testing.T) {
	env := testutil.NewEnv(t)
	env.AddInstalledPackage("foo", "1.0", "2.0")
	env.Backend.InstallErr["foo"] = fmt.Errorf("dpkg exploded")

	_, err := env.Engine.Roll("foo")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrBackend))

	// Registry entry and pin are gone after rollback.
	assert.False(t, env.Tracked(t, "foo"))
	assert.False(t, env.PinExists(t, "foo"))
}

func TestRoll_RollbackLeavesDependencyPins(t *testing.T) {
	env := testutil.NewEnv(t)
	env.AddInstalledPackage("foo", "1.0", "2.0")
	env.Backend.AddCandidate(testutil.Channel, "libdep", "2.0")
	env.Backend.Depends["foo"] = []string{"libdep"}
	env.Backend.InstallErr["foo"] = fmt.Errorf("dpkg exploded")

	_, err := env.Engine.Roll("foo")
	require.Error(t, err)

	// Best-effort rollback: the failed package is cleaned up, the
	// dependency state it induced stays for `aptr check` to surface.
	assert.False(t, env.Tracked(t, "foo"))
	assert.True(t, env.Tracked(t, "libdep"))
	assert.True(t, env.PinExists(t, "libdep"))
}

func TestRoll_RollbackOnDiscoveryFailure(t *testing.T) {
	env := testutil.NewEnv(t)
	env.AddInstalledPackage("foo", "1.0", "2.0")
	env.Backend.DependsErr["foo"] = fmt.Errorf("apt-cache depends crashed")

	_, err := env.Engine.Roll("foo")
	require.Error(t, err)

	// The query failed after foo's entry and pin were written; both are
	// rolled back and the install step never ran.
	assert.False(t, env.Tracked(t, "foo"))
	assert.False(t, env.PinExists(t, "foo"))
	assert.Empty(t, env.Backend.InstallLog)
}

func TestInstall_NotYetInstalled(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Backend.AddCandidate(testutil.Channel, "newpkg", "3.0")

	result, err := env.Engine.Install("newpkg")
	require.NoError(t, err)
	assert.Equal(t, "install", result.Command)
	assert.True(t, env.Tracked(t, "newpkg"))
	assert.Equal(t, "3.0", env.Backend.Installed["newpkg"])
}

func TestUnroll(t *testing.T) {
	env := testutil.NewEnv(t)
	env.AddInstalledPackage("foo", "1.0", "2.0")
	_, err := env.Engine.Roll("foo")
	require.NoError(t, err)

	_, err = env.Engine.Unroll("foo")
	require.NoError(t, err)

	assert.False(t, env.Tracked(t, "foo"))
	assert.False(t, env.PinExists(t, "foo"))
}

func TestUnroll_NotTracked(t *testing.T) {
	env := testutil.NewEnv(t)

	_, err := env.Engine.Unroll("ghost")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrNotTracked))
}

func TestUnroll_NeverUninstalls(t *testing.T) {
	env := testutil.NewEnv(t)
	env.AddInstalledPackage("bar", "1.0", "2.0")
	_, err := env.Engine.Roll("bar")
	require.NoError(t, err)

	installedBefore, err := env.Backend.InstalledVersion("bar")
	require.NoError(t, err)
	installCallsBefore := len(env.Backend.InstallLog)

	_, err = env.Engine.Unroll("bar")
	require.NoError(t, err)

	// Only pin/tracking state changed: the package is still installed
	// at the same version and the backend saw no further calls.
	installedAfter, err := env.Backend.InstalledVersion("bar")
	require.NoError(t, err)
	assert.Equal(t, installedBefore, installedAfter)
	assert.Len(t, env.Backend.InstallLog, installCallsBefore)
}

func TestUnroll_ReferenceCounting(t *testing.T) {
	env := testutil.NewEnv(t)
	env.AddInstalledPackage("app1", "1.0", "2.0")
	env.AddInstalledPackage("app2", "1.0", "2.0")
	env.Backend.AddCandidate(testutil.Channel, "libshared", "2.0")
	env.Backend.Depends["app1"] = []string{"libshared"}
	env.Backend.Depends["app2"] = []string{"libshared"}

	_, err := env.Engine.Roll("app1")
	require.NoError(t, err)
	// app2's scan sees libshared already tracked, so give it a second
	// edge directly, the way a shared dependency accumulates parents.
	_, err = env.Engine.Roll("app2")
	require.NoError(t, err)
	require.NoError(t, env.Graph.AddEdge("libshared", "app2"))

	// Demoting app1 leaves libshared rolling: app2 still holds it.
	_, err = env.Engine.Unroll("app1")
	require.NoError(t, err)
	assert.True(t, env.Tracked(t, "libshared"))
	assert.True(t, env.PinExists(t, "libshared"))

	// Demoting app2 releases the last reference.
	_, err = env.Engine.Unroll("app2")
	require.NoError(t, err)
	assert.False(t, env.Tracked(t, "libshared"))
	assert.False(t, env.PinExists(t, "libshared"))
}

func TestUpgradeAll(t *testing.T) {
	env := testutil.NewEnv(t)
	for _, name := range []string{"one", "two", "three"} {
		env.AddInstalledPackage(name, "1.0", "2.0")
		_, err := env.Engine.Roll(name)
		require.NoError(t, err)
	}
	env.Backend.InstallLog = nil

	result, err := env.Engine.UpgradeAll()
	require.NoError(t, err)
	assert.Len(t, env.Backend.InstallLog, 3)
	assert.Len(t, result.Packages, 3)
}

func TestUpgradeAll_CollectsFailures(t *testing.T) {
	env := testutil.NewEnv(t)
	for _, name := range []string{"good", "bad", "alsogood"} {
		env.AddInstalledPackage(name, "1.0", "2.0")
		_, err := env.Engine.Roll(name)
		require.NoError(t, err)
	}
	env.Backend.InstallLog = nil
	env.Backend.InstallErr["bad"] = fmt.Errorf("conffile prompt")

	result, err := env.Engine.UpgradeAll()
	require.Error(t, err)
	require.NotNil(t, result)

	// The sweep visited every package despite the failure.
	assert.Len(t, env.Backend.InstallLog, 3)
	failures := 0
	for _, pkg := range result.Packages {
		if !pkg.Success {
			failures++
			assert.Equal(t, "bad", pkg.Name)
		}
	}
	assert.Equal(t, 1, failures)
	assert.Contains(t, result.Message, "1 failed")
}

func TestDryRun_MutatesNothing(t *testing.T) {
	env := testutil.NewEnv(t)
	env.AddInstalledPackage("foo", "1.0", "2.0")
	env.Backend.AddCandidate(testutil.Channel, "libdep", "2.0")
	env.Backend.Depends["foo"] = []string{"libdep"}
	env.Engine.DryRun = true

	result, err := env.Engine.Roll("foo")
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Len(t, result.Packages, 2)

	assert.False(t, env.Tracked(t, "foo"))
	assert.False(t, env.PinExists(t, "foo"))
	assert.False(t, env.Tracked(t, "libdep"))
	assert.Empty(t, env.Backend.InstallLog)
}

func TestStatus(t *testing.T) {
	env := testutil.NewEnv(t)
	env.AddInstalledPackage("app", "1.0", "2.0")
	env.Backend.AddCandidate(testutil.Channel, "libdep", "2.0")
	env.Backend.Depends["app"] = []string{"libdep"}

	_, err := env.Engine.Roll("app")
	require.NoError(t, err)

	st, err := env.Engine.Status("app")
	require.NoError(t, err)
	assert.Equal(t, types.ClassPrimary, st.Class)
	assert.Equal(t, []string{"libdep"}, st.Dependencies)
	assert.True(t, st.PinPresent)

	dep, err := env.Engine.Status("libdep")
	require.NoError(t, err)
	assert.Equal(t, types.ClassDependency, dep.Class)
	assert.Equal(t, []string{"app"}, dep.Parents)

	listed, err := env.Engine.ListStatus()
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}
