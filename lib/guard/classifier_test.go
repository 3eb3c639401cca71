package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_Untrained(t *testing.T) {
	c := NewClassifier()
	assert.False(t, c.Trained())
	assert.Zero(t, c.Score("anything"))
	assert.False(t, c.IsBad("anything", 0))
	assert.False(t, c.IsBad("anything", 99))
}

func TestClassifier_NotEnoughData(t *testing.T) {
	c := NewClassifier()
	c.Train([]string{"bad one"}, []string{"good one", "good two"})
	assert.False(t, c.Trained(), "one bad example is not enough")
	assert.Zero(t, c.Score("bad one"))

	c.Train([]string{"bad one", "bad two"}, []string{"good one"})
	assert.False(t, c.Trained(), "one good example is not enough")
}

func TestClassifier_TrainAndScore(t *testing.T) {
	c := NewClassifier()
	bad := []string{"you stupid idiot", "what an idiot", "stupid stupid fool"}
	good := []string{"hello my friend", "good morning all", "what a nice day"}
	c.Train(bad, good)
	require.True(t, c.Trained())

	badScore := c.Score("stupid idiot")
	goodScore := c.Score("good morning friend")
	t.Logf("bad: %.2f, good: %.2f", badScore, goodScore)
	assert.Greater(t, badScore, goodScore)
	assert.True(t, c.IsBad("stupid idiot", 50))
	assert.False(t, c.IsBad("good morning friend", 50))

	// scores stay in range for arbitrary input
	for _, text := range []string{"", "unrelated text", "نص عربي تماما", "1234567890", "!@#$%"} {
		s := c.Score(text)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 100.0)
	}
}

func TestClassifier_RetrainReplacesModel(t *testing.T) {
	c := NewClassifier()
	c.Train([]string{"aaa bbb", "bbb ccc"}, []string{"xxx yyy", "yyy zzz"})
	require.True(t, c.Trained())
	first := c.Model()

	c.Train([]string{"aaa bbb", "bbb ccc", "ccc ddd"}, []string{"xxx yyy", "yyy zzz"})
	require.True(t, c.Trained())
	assert.NotSame(t, first, c.Model(), "retrain installs a new model")

	// dropping below the minimum reverts to untrained
	c.Train([]string{"aaa bbb"}, []string{"xxx yyy"})
	assert.False(t, c.Trained())
}

func TestClassifier_ArabicExamples(t *testing.T) {
	c := NewClassifier()
	bad := []string{"يا غبي", "انت غبي جدا", "غبي وما تفهم"}
	good := []string{"صباح الخير", "يوم جميل", "شكرا جزيلا"}
	c.Train(bad, good)
	require.True(t, c.Trained())
	assert.Greater(t, c.Score("غبي"), c.Score("صباح الخير جميل"))
}

func TestLabelsHash(t *testing.T) {
	h1 := LabelsHash([]string{"a", "b"}, []string{"x", "y"})
	h2 := LabelsHash([]string{"b", "a"}, []string{"y", "x"})
	assert.Equal(t, h1, h2, "hash is order-insensitive")

	h3 := LabelsHash([]string{"a", "b", "c"}, []string{"x", "y"})
	assert.NotEqual(t, h1, h3, "hash changes with the label set")

	h4 := LabelsHash([]string{"a", "b"}, []string{"x", "z"})
	assert.NotEqual(t, h1, h4)
}

func TestNgrams(t *testing.T) {
	grams := ngrams("ab")
	// "a", "b", "ab" - three grams total, frequency-normalized
	assert.Len(t, grams, 3)
	assert.InDelta(t, 1.0/3, grams["a"], 1e-9)
	assert.InDelta(t, 1.0/3, grams["ab"], 1e-9)

	assert.Empty(t, ngrams(""))

	// case-sensitive
	assert.NotEqual(t, ngrams("AB"), ngrams("ab"))
}
