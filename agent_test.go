package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedpals/nfc-session/buildinfo"
	"github.com/nedpals/nfc-session/config"
	"github.com/nedpals/nfc-session/nfc"
)

func newMockAgent(t *testing.T) *Agent {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.NFC.Mock = true
	cfg.NFC.NotifyUser = false
	cfg.Server.Enabled = false

	agent := NewAgent(cfg, zerolog.Nop())
	agent.LockPath = filepath.Join(t.TempDir(), "agent.lock")
	return agent
}

func TestAgentMockRead(t *testing.T) {
	agent := newMockAgent(t)
	require.NoError(t, agent.Start(""))
	defer agent.Stop()

	assert.True(t, agent.Running())
	assert.ErrorIs(t, agent.Start(""), ErrAlreadyRunning)

	pending, err := agent.Controller().ArmForRead()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := pending.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, nfc.DefaultPayload, res.Text)
	assert.Equal(t, "044E4643000001", res.TagID)
}

func TestAgentMockWriteThenRead(t *testing.T) {
	agent := newMockAgent(t)
	require.NoError(t, agent.Start(""))
	defer agent.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pending, err := agent.Controller().ArmForWrite([]byte("updated"))
	require.NoError(t, err)
	_, err = pending.Wait(ctx)
	require.NoError(t, err)

	pending, err = agent.Controller().ArmForRead()
	require.NoError(t, err)
	res, err := pending.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "updated", res.Text)
}

func TestAgentStop(t *testing.T) {
	agent := newMockAgent(t)
	require.NoError(t, agent.Start(""))

	agent.Stop()
	assert.False(t, agent.Running())
	assert.Nil(t, agent.Controller())

	// Stopping twice is harmless and the agent can start again.
	agent.Stop()
	require.NoError(t, agent.Start(""))
	agent.Stop()
}

func TestAgentReaderLock(t *testing.T) {
	first := newMockAgent(t)
	require.NoError(t, first.Start(""))
	defer first.Stop()

	second := newMockAgent(t)
	second.LockPath = first.LockPath
	err := second.Start("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another "+buildinfo.Name+" instance")
	assert.False(t, second.Running())
}

func TestAgentCardTypeFilters(t *testing.T) {
	agent := newMockAgent(t)

	agent.SetAllowCardType(nfc.CardTypeNtag213, true)
	agent.SetAllowCardType(nfc.CardTypeNtag215, true)
	agent.SetAllowCardType(nfc.CardTypeNtag213, true)
	assert.Equal(t, []string{nfc.CardTypeNtag213, nfc.CardTypeNtag215}, agent.Filters())

	agent.SetAllowCardType(nfc.CardTypeNtag213, false)
	assert.Equal(t, []string{nfc.CardTypeNtag215}, agent.Filters())

	agent.AllowAllCardTypes()
	assert.Empty(t, agent.Filters())
}

func TestAgentFiltersRejectMockTag(t *testing.T) {
	agent := newMockAgent(t)
	// The simulated tag is an Ultralight, so a DESFire-only filter never matches.
	agent.SetAllowCardType(nfc.CardTypeDesfire, true)
	require.NoError(t, agent.Start(""))
	defer agent.Stop()

	pending, err := agent.Controller().ArmForRead()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	_, err = pending.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), buildinfo.Name+" "+buildinfo.FullVersion()))
}

func TestPrintFailure(t *testing.T) {
	var out bytes.Buffer
	err := printFailure(&out, nfc.NewTagRemovedError("read", nil))

	var reported reportedError
	assert.ErrorAs(t, err, &reported)
	assert.True(t, nfc.IsTagRemovedError(err))
	assert.Contains(t, out.String(), "TagRemoved")
}
