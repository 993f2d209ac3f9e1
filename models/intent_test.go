package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ferreirogomes/cotas/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntentVotingWindowIsSecondsInJSON(t *testing.T) {
	intent := models.Intent{Kind: models.IntentCreateProposal, AssetID: "a1", HolderID: "ana",
		ProposalType: models.ProposalRenovate, Description: "Reforma", VotingWindow: 48 * time.Hour}
	env := models.Envelope{Kind: intent.Kind, AssetID: "a1", Sender: "ana", VotingWindow: 48 * 3600}

	body, err := json.Marshal(intent)
	require.NoError(t, err)
	var fromIntent map[string]any
	require.NoError(t, json.Unmarshal(body, &fromIntent))
	envBody, err := json.Marshal(env)
	require.NoError(t, err)
	var fromEnvelope map[string]any
	require.NoError(t, json.Unmarshal(envBody, &fromEnvelope))

	assert.Equal(t, float64(172800), fromIntent["voting_window"])
	assert.Equal(t, fromEnvelope["voting_window"], fromIntent["voting_window"])

	var decoded models.Intent
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, intent, decoded)
	assert.Equal(t, env.Intent().VotingWindow, decoded.VotingWindow)
}

func TestIntentJSONRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"campo desconhecido": `{"kind":"buy","holder_id":"ana","extra":1}`,
		"janela enorme":      `{"kind":"create_proposal","holder_id":"ana","voting_window":18446744073709551615}`,
		"janela negativa":    `{"kind":"create_proposal","holder_id":"ana","voting_window":-1}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			var intent models.Intent
			assert.Error(t, json.Unmarshal([]byte(body), &intent))
		})
	}
}
