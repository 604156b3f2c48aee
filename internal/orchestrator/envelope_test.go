package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"kind":"launch","task":{"task_id":"t-1","name":"build web"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindLaunch, env.Kind)
	assert.Equal(t, "t-1", env.Task.TaskID)

	bad := []string{
		`not json`,
		`{"kind":"registered"}`,
		`{"kind":"launch","task":{}}`,
		`{"kind":"kill"}`,
		`{"kind":"reboot"}`,
	}
	for _, raw := range bad {
		_, err := DecodeEnvelope([]byte(raw))
		assert.Error(t, err, raw)
	}

	_, err = DecodeEnvelope([]byte(`{"kind":"shutdown"}`))
	assert.NoError(t, err)
}

func TestExecutorPayloadInfo(t *testing.T) {
	obj := ExecutorPayload{ExecutorID: "e", Data: []byte(` {"context":"a.tar"}`)}
	info, err := obj.Info()
	require.NoError(t, err)
	assert.Equal(t, "e", info.ExecutorID)
	assert.Equal(t, `{"context":"a.tar"}`, string(info.Data))

	str := ExecutorPayload{Data: []byte(`"context: a.tar\nimage: {}\n"`)}
	info, err = str.Info()
	require.NoError(t, err)
	assert.Equal(t, "context: a.tar\nimage: {}\n", string(info.Data))
}

func TestSubjects(t *testing.T) {
	s := SubjectsFor("build.executor", "abc")
	assert.Equal(t, Subjects{
		Control: "build.executor.abc.control",
		Status:  "build.executor.abc.status",
		Message: "build.executor.abc.message",
	}, s)
	assert.Equal(t, "build.executor.*.status", StatusWildcard("build.executor"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, ExitCode(DriverStopped))
	assert.Equal(t, 1, ExitCode(DriverAborted))
	assert.Equal(t, 0, ExitCode(DriverRunning))
	assert.Equal(t, 0, ExitCode(DriverNotStarted))
	assert.Equal(t, "DRIVER_STOPPED", DriverStopped.String())
}
