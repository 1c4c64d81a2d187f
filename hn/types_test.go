package hn

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStoryDistinguishesAbsentFromZero(t *testing.T) {
	s, err := DecodeStory([]byte(`{"id":1,"type":"story","score":0,"dead":false,"kids":[]}`))
	require.NoError(t, err)
	require.NotNil(t, s.Score)
	assert.Equal(t, 0, *s.Score)
	require.NotNil(t, s.Dead)
	assert.False(t, *s.Dead)
	assert.NotNil(t, s.Kids)
	assert.Empty(t, s.Kids)

	s, err = DecodeStory([]byte(`{"id":1,"type":"story"}`))
	require.NoError(t, err)
	assert.Nil(t, s.Score)
	assert.Nil(t, s.Dead)
	assert.Nil(t, s.Kids)
	assert.Nil(t, s.Descendants)
	assert.False(t, s.IsDead())
	assert.False(t, s.HasKids())
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	c, err := DecodeComment([]byte(`{"id":9,"type":"comment","parent":8,"flagged":true,"extra":{"a":1}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(9), c.ID)
	assert.Equal(t, int64(8), *c.Parent)
}

func TestDecodeNullAndWrongShape(t *testing.T) {
	s, err := DecodeStory([]byte(" null\n"))
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = DecodeStory([]byte(`{"title":"no id"}`))
	assert.ErrorIs(t, err, ErrWrongShape)

	_, err = DecodeComment([]byte(`"just a string"`))
	assert.ErrorIs(t, err, ErrWrongShape)
}

func TestDecodeRejectsNullChildIDs(t *testing.T) {
	for _, body := range []string{
		`{"id":10,"type":"story","kids":[11,null]}`,
		`{"id":10,"type":"poll","parts":[null]}`,
	} {
		s, err := DecodeStory([]byte(body))
		assert.ErrorIs(t, err, ErrWrongShape, body)
		assert.Nil(t, s)
	}

	c, err := DecodeComment([]byte(`{"id":11,"type":"comment","parent":10,"kids":[null,12]}`))
	assert.ErrorIs(t, err, ErrWrongShape)
	assert.Nil(t, c)

	c, err = DecodeComment([]byte(`{"id":11,"type":"comment","parent":10,"kids":[12]}`))
	require.NoError(t, err)
	assert.Equal(t, []int64{12}, c.Kids)
}

func TestDecodeIsIdempotent(t *testing.T) {
	bodies := []string{
		`{"by":"pg","descendants":15,"id":126809,"kids":[126822,126823],"parts":[126810,126811],"score":46,"text":"","time":1204403652,"title":"Poll: What would happen if News.YC had explicit support for polls?","type":"poll"}`,
		`{"id":1,"type":"story","dead":true,"deleted":false,"score":0,"kids":[],"unknown":"dropped"}`,
		`{"id":2,"type":"story"}`,
	}
	for _, body := range bodies {
		first, err := DecodeStory([]byte(body))
		require.NoError(t, err)

		again, err := DecodeStory([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, first, again)

		encoded, err := json.Marshal(first)
		require.NoError(t, err)
		roundTrip, err := DecodeStory(encoded)
		require.NoError(t, err)
		assert.Equal(t, first, roundTrip, "re-encoded: %s", encoded)
	}
}

func TestKind(t *testing.T) {
	kind, err := Kind([]byte(`{"id":1,"type":"pollopt"}`))
	require.NoError(t, err)
	assert.Equal(t, TypePollOpt, kind)

	kind, err = Kind([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, kind)

	_, err = Kind([]byte(`[]`))
	assert.ErrorIs(t, err, ErrWrongShape)
}
