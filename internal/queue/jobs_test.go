package queue

import (
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/certdossier/internal/orchestrator"
)

func TestRunTaskPayload(t *testing.T) {
	req := orchestrator.Request{RunID: "r-1", CaseID: 42, SubjectID: "123", MotherName: "ANA", SubjectType: "CPF"}

	task, err := NewRunTask(req)
	require.NoError(t, err)
	assert.Equal(t, RunCertificatesTask, task.Type())

	got, err := DecodeRunPayload(task)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestDecodeRejectsBadPayload(t *testing.T) {
	_, err := DecodeRunPayload(asynq.NewTask(RunCertificatesTask, []byte("{")))
	assert.Error(t, err)

	_, err = DecodeRunPayload(asynq.NewTask(RunCertificatesTask, []byte(`{"case_id":0}`)))
	assert.Error(t, err)
}
