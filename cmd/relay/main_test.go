package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTuplesMergesFlagTrioAndRelayList(t *testing.T) {
	tuples, err := buildTuples(runOptions{
		listenText: "19001",
		dstText:    "127.0.0.1:19002",
		relayList:  "19101,127.0.0.1:19111/19102,127.0.0.1:19112",
	})
	require.NoError(t, err)
	require.Len(t, tuples, 3)
	assert.EqualValues(t, 19001, tuples[0].Listen.Port)
	assert.EqualValues(t, 19101, tuples[1].Listen.Port)
	assert.EqualValues(t, 19102, tuples[2].Listen.Port)
}

func TestBuildTuplesRequiresAtLeastOneSource(t *testing.T) {
	_, err := buildTuples(runOptions{})
	require.Error(t, err)
}

func TestBuildTuplesRelayListOnly(t *testing.T) {
	tuples, err := buildTuples(runOptions{relayList: "19101,127.0.0.1:19111"})
	require.NoError(t, err)
	require.Len(t, tuples, 1)
}
