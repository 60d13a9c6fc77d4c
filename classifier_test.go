package farc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultClassifier(t *testing.T) {
	t.Parallel()

	c := DefaultClassifier()
	testCases := []struct {
		name   string
		want   StrategyTag
		wantOK bool
	}{
		{name: "message_us.bin", want: StrategyMessage, wantOK: true},
		{name: "message.bin", want: StrategyMessage, wantOK: true},
		{name: "MESSAGE_JP.BIN", want: StrategyMessage, wantOK: true},
		{name: "data/dl/message_fr.bin", want: StrategyMessage, wantOK: true},
		{name: `C:\dump\message_de.bin`, want: StrategyMessage, wantOK: true},
		{name: "pokemon_graphic.bin", wantOK: false},
		{name: "message_us.lst", wantOK: false},
		{name: "mymessage.bin", wantOK: false},
		{name: "", wantOK: false},
	}

	for _, tc := range testCases {
		got, ok := c.PredictStrategy(tc.name)
		assert.Equal(t, tc.wantOK, ok, "PredictStrategy(%q)", tc.name)
		assert.Equal(t, tc.want, got, "PredictStrategy(%q)", tc.name)
	}
}

func TestClassifierRuleAppend(t *testing.T) {
	t.Parallel()

	c, err := NewClassifier(append(DefaultRules(),
		ClassifierRule{Pattern: "pokemon_graphic*.bin", Strategy: "graphic"},
		ClassifierRule{Pattern: "message_*.bin", Strategy: "shadowed"},
	))
	require.NoError(t, err)

	tag, ok := c.PredictStrategy("pokemon_graphic_00.bin")
	require.True(t, ok)
	assert.Equal(t, StrategyTag("graphic"), tag)

	// first matching rule wins
	tag, ok = c.PredictStrategy("message_us.bin")
	require.True(t, ok)
	assert.Equal(t, StrategyMessage, tag)
}

func TestClassifierInvalidRule(t *testing.T) {
	t.Parallel()

	_, err := NewClassifier([]ClassifierRule{{Pattern: "", Strategy: StrategyMessage}})
	require.ErrorIs(t, err, ErrInvalidClassifierRule)

	_, err = NewClassifier([]ClassifierRule{{Pattern: "*.bin"}})
	require.ErrorIs(t, err, ErrInvalidClassifierRule)
}

func TestNilClassifier(t *testing.T) {
	t.Parallel()

	var c *Classifier
	_, ok := c.PredictStrategy("message.bin")
	assert.False(t, ok)
}
