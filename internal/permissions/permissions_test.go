package permissions

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAccess replaces the platform check for the duration of a test.
func fakeAccess(t *testing.T, granted, grantOnPrompt bool) *int {
	t.Helper()
	prompts := 0
	orig := screenCaptureAccess
	screenCaptureAccess = func(prompt bool) bool {
		if prompt {
			prompts++
			return grantOnPrompt
		}
		return granted
	}
	promptOnce, prompted = sync.Once{}, false
	t.Cleanup(func() {
		screenCaptureAccess = orig
		promptOnce, prompted = sync.Once{}, false
	})
	return &prompts
}

func TestEnsureScreenRecordingGranted(t *testing.T) {
	prompts := fakeAccess(t, true, false)
	require.NoError(t, EnsureScreenRecording())
	assert.Equal(t, Granted, ScreenRecording())
	assert.Zero(t, *prompts)
}

func TestEnsureScreenRecordingPromptsOnce(t *testing.T) {
	prompts := fakeAccess(t, false, false)

	require.ErrorIs(t, EnsureScreenRecording(), ErrScreenRecordingDenied)
	require.ErrorIs(t, EnsureScreenRecording(), ErrScreenRecordingDenied)
	assert.Equal(t, 1, *prompts)
	assert.Equal(t, Prompted, RequestScreenRecording())
	assert.Equal(t, Denied, ScreenRecording())
}

func TestEnsureScreenRecordingGrantedOnPrompt(t *testing.T) {
	fakeAccess(t, false, true)
	require.NoError(t, EnsureScreenRecording())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "granted", Granted.String())
	assert.Equal(t, "prompted", Prompted.String())
	assert.Equal(t, "denied", Denied.String())
}
