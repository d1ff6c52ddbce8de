package index

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	x, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })
	return x
}

func TestAddPatientBidirectional(t *testing.T) {
	x := openTestIndex(t)

	require.NoError(t, x.AddPatient("Smith^John", "PID-1", "471234-000001", "471234-000001"))

	fwd, ok := x.Forward("PID-1")
	require.True(t, ok)
	assert.Equal(t, "471234-000001", fwd.ID)
	assert.Equal(t, "471234-000001", fwd.Name)

	inv, ok := x.Inverse(fwd.ID)
	require.True(t, ok)
	assert.Equal(t, "PID-1", inv.ID, "inverse of forward must return the original id")
	assert.Equal(t, "Smith^John", inv.Name)
}

func TestLookupsAreCaseInsensitive(t *testing.T) {
	x := openTestIndex(t)

	require.NoError(t, x.AddPatient("Doe^Jane", "Pid-Mixed", "471234-000002", "471234-000002"))

	_, ok := x.Forward("PID-MIXED")
	assert.True(t, ok)
	_, ok = x.Forward("pid-mixed")
	assert.True(t, ok)
}

func TestLookupAbsentKey(t *testing.T) {
	x := openTestIndex(t)

	_, ok := x.Forward("nobody")
	assert.False(t, ok)
	_, ok = x.Inverse("nobody")
	assert.False(t, ok)
	assert.Empty(t, x.StudiesFor("nobody"))
	_, ok = x.UIDFor("nobody", "20200101", "A1")
	assert.False(t, ok)
}

func TestAddStudyDeduplicates(t *testing.T) {
	x := openTestIndex(t)

	require.NoError(t, x.AddStudy("PID-1", "20200101", "A1", "20170712", "A5551112223"))
	require.NoError(t, x.AddStudy("PID-1", "20200101", "A1", "20170712", "A5551112223"))
	require.NoError(t, x.AddStudy("PID-1", "20200301", "A2", "20170910", "A5551112224"))

	studies := x.StudiesFor("PID-1")
	require.Len(t, studies, 2, "reprocessing must not duplicate a study")
	assert.Equal(t, "20200101", studies[0].PHIDate, "studies must be chronological")
	assert.Equal(t, "20200301", studies[1].PHIDate)
}

func TestUIDCrossReference(t *testing.T) {
	x := openTestIndex(t)

	require.NoError(t, x.AddStudyInstanceUID(
		"471234-000001", "20170712", "A5551112223", "1.2.3.4", "1.2.840.99999999.777"))

	e, ok := x.UIDFor("471234-000001", "20170712", "A5551112223")
	require.True(t, ok)
	assert.Equal(t, "1.2.3.4", e.OrigStudyUID)
	assert.Equal(t, "1.2.840.99999999.777", e.AnonStudyUID)

	// Idempotent rewrite with identical content.
	require.NoError(t, x.AddStudyInstanceUID(
		"471234-000001", "20170712", "A5551112223", "1.2.3.4", "1.2.840.99999999.777"))
}

func TestListOrderedByAnonymizedName(t *testing.T) {
	x := openTestIndex(t)

	require.NoError(t, x.AddPatient("Zulu^Z", "PID-Z", "471234-000003", "471234-000003"))
	require.NoError(t, x.AddPatient("Alpha^A", "PID-A", "471234-000001", "471234-000001"))
	require.NoError(t, x.AddPatient("Mike^M", "PID-M", "471234-000002", "471234-000002"))

	pairs := x.List()
	require.Len(t, pairs, 3)
	for i := 1; i < len(pairs); i++ {
		assert.LessOrEqual(t, pairs[i-1].Forward.Name, pairs[i].Forward.Name)
	}
	for _, p := range pairs {
		inv, ok := x.Inverse(p.Forward.ID)
		require.True(t, ok, "every forward entry needs its inverse")
		assert.Equal(t, p.Inverse.ID, inv.ID)
	}
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	x, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, x.AddPatient("Smith^John", "PID-1", "471234-000001", "471234-000001"))
	require.NoError(t, x.Close())

	x, err = Open(dir, nil)
	require.NoError(t, err)
	defer x.Close()

	fwd, ok := x.Forward("PID-1")
	require.True(t, ok)
	assert.Equal(t, "471234-000001", fwd.ID)
}

func TestAllocateIdempotent(t *testing.T) {
	a, err := OpenAllocator(t.TempDir())
	require.NoError(t, err)
	defer a.Close()

	first, err := a.Allocate("PID-1")
	require.NoError(t, err)
	again, err := a.Allocate("PID-1")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := a.Allocate("PID-2")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestAllocateConcurrentSingleWinner(t *testing.T) {
	a, err := OpenAllocator(t.TempDir())
	require.NoError(t, err)
	defer a.Close()

	const n = 16
	results := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seq, err := a.Allocate("PID-RACE")
			assert.NoError(t, err)
			results[i] = seq
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, results[0], results[i],
			"concurrent allocation for one id must have a single winner")
	}
}

func TestAllocatorSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	a, err := OpenAllocator(dir)
	require.NoError(t, err)
	first, err := a.Allocate("PID-1")
	require.NoError(t, err)
	require.NoError(t, a.Close())

	a, err = OpenAllocator(dir)
	require.NoError(t, err)
	defer a.Close()

	again, err := a.Allocate("PID-1")
	require.NoError(t, err)
	assert.Equal(t, first, again, "sequence mapping must survive a restart")
}
