package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	sr, sc, rf bool
	attrs      map[string]any
}

func (f fakeObject) IsSR() bool                 { return f.sr }
func (f fakeObject) IsSecondaryCapture() bool   { return f.sc }
func (f fakeObject) IsReformatted() bool        { return f.rf }
func (f fakeObject) Attributes() map[string]any { return f.attrs }

func TestStructuredReportGate(t *testing.T) {
	f := New()

	d, err := f.Evaluate(fakeObject{sr: true}, Settings{RejectSR: true})
	require.NoError(t, err)
	assert.False(t, d.Accepted)
	assert.Equal(t, ReasonSR, d.Reason)

	// Gate disabled: the same object passes.
	d, err = f.Evaluate(fakeObject{sr: true}, Settings{})
	require.NoError(t, err)
	assert.True(t, d.Accepted)
}

func TestSecondaryCaptureGate(t *testing.T) {
	f := New()

	d, err := f.Evaluate(fakeObject{sc: true}, Settings{RejectSC: true})
	require.NoError(t, err)
	assert.Equal(t, ReasonSC, d.Reason)

	// A reformatted/derived image is accepted when the override is on.
	d, err = f.Evaluate(fakeObject{sc: true, rf: true},
		Settings{RejectSC: true, AcceptReformatted: true})
	require.NoError(t, err)
	assert.True(t, d.Accepted)

	d, err = f.Evaluate(fakeObject{sc: true, rf: true}, Settings{RejectSC: true})
	require.NoError(t, err)
	assert.Equal(t, ReasonSC, d.Reason)
}

func TestScriptGate(t *testing.T) {
	f := New()
	obj := fakeObject{attrs: map[string]any{"Modality": "CT", "StudyDate": "20200101"}}

	d, err := f.Evaluate(obj, Settings{Script: `attrs.Modality == "CT"`})
	require.NoError(t, err)
	assert.True(t, d.Accepted)

	d, err = f.Evaluate(obj, Settings{Script: `attrs.Modality == "MR"`})
	require.NoError(t, err)
	assert.False(t, d.Accepted)
	assert.Equal(t, ReasonScript, d.Reason)
}

func TestScriptErrors(t *testing.T) {
	f := New()
	obj := fakeObject{attrs: map[string]any{"Modality": "CT"}}

	_, err := f.Evaluate(obj, Settings{Script: `this is not CEL ((`})
	assert.Error(t, err)

	_, err = f.Evaluate(obj, Settings{Script: `attrs.Modality`})
	assert.Error(t, err, "a non-boolean script result is an error, not a rejection")
}

func TestScriptProgramCached(t *testing.T) {
	f := New()
	obj := fakeObject{attrs: map[string]any{"Modality": "CT"}}

	for i := 0; i < 3; i++ {
		_, err := f.Evaluate(obj, Settings{Script: `attrs.Modality == "CT"`})
		require.NoError(t, err)
	}
	assert.Len(t, f.cache, 1)
}
