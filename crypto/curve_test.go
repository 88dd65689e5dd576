package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePointRejectsGarbage(t *testing.T) {
	require.Error(t, ParsePoint(make([]byte, PointSize)))
	require.Error(t, ParsePoint([]byte{0x02}))

	x, err := RandomScalar()
	require.NoError(t, err)
	p, err := PublicKey(x)
	require.NoError(t, err)
	require.NoError(t, ParsePoint(p[:]))
}

func TestScalarArithmetic(t *testing.T) {
	a, err := RandomScalar()
	require.NoError(t, err)
	b, err := RandomScalar()
	require.NoError(t, err)

	sum, err := AddScalars(a, b)
	require.NoError(t, err)
	back, err := SubScalars(sum, b)
	require.NoError(t, err)
	require.Equal(t, a, back)

	var overflow Scalar
	for i := range overflow {
		overflow[i] = 0xff
	}
	_, err = AddScalars(overflow, b)
	require.ErrorIs(t, err, errScalarOverflow)
}

func TestGeneratorHIsStable(t *testing.T) {
	h1 := GeneratorH()
	h2 := GeneratorH()
	require.Equal(t, h1, h2)
	require.NoError(t, ParsePoint(h1[:]))

	var one Scalar
	one[ScalarSize-1] = 1
	g, err := PublicKey(one)
	require.NoError(t, err)
	require.NotEqual(t, g, h1)
}

func TestCommitmentTally(t *testing.T) {
	r1, err := RandomScalar()
	require.NoError(t, err)
	r2, err := RandomScalar()
	require.NoError(t, err)
	rSum, err := AddScalars(r1, r2)
	require.NoError(t, err)

	c1, err := Commit(r1, 70)
	require.NoError(t, err)
	c2, err := Commit(r2, 25)
	require.NoError(t, err)
	out, err := Commit(rSum, 90)
	require.NoError(t, err)
	fee, err := Commit(Scalar{}, 5)
	require.NoError(t, err)

	ok, err := VerifyTally([]Commitment{c1, c2}, []Commitment{out, fee})
	require.NoError(t, err)
	require.True(t, ok)

	short, err := Commit(Scalar{}, 4)
	require.NoError(t, err)
	ok, err = VerifyTally([]Commitment{c1, c2}, []Commitment{out, short})
	require.NoError(t, err)
	require.False(t, ok)

	_, err = VerifyTally([]Commitment{{}}, []Commitment{out})
	require.Error(t, err)
}

func TestCommitZeroWithZeroBlind(t *testing.T) {
	_, err := Commit(Scalar{}, 0)
	require.ErrorIs(t, err, errPointAtInfinity)
}
